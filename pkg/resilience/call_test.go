package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type reply struct {
	Items    []string
	Degraded bool
}

func degradedReply(string) reply { return reply{Degraded: true} }

func TestCallRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		if calls.Add(1) < 3 {
			return reply{}, &StatusError{Code: 503}
		}
		return reply{Items: []string{req}}, nil
	}

	c := NewCall(Policy{Name: "test", MaxRetries: 3, BaseDelay: time.Millisecond}, op, logger.NewTestLogger())
	got, err := c.Execute(context.Background(), "a")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(got.Items) != 1 || got.Items[0] != "a" {
		t.Errorf("Execute() = %+v, want one item", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("op called %d times, want 3", n)
	}
}

type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTimer) After(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestCallBackoffDoublesWithoutJitter(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		calls.Add(1)
		return reply{}, &StatusError{Code: 502}
	}

	for run := 0; run < 3; run++ {
		timer := &recordingTimer{}
		c := NewCall(Policy{Name: "test", MaxRetries: 3, BaseDelay: 200 * time.Millisecond}, op, nil,
			withTimer[string, reply](timer))
		if _, err := c.Execute(context.Background(), "a"); !errors.Is(err, ErrExhausted) {
			t.Fatalf("Execute() error = %v, want ErrExhausted", err)
		}

		want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
		if len(timer.delays) != len(want) {
			t.Fatalf("delays = %v, want %v", timer.delays, want)
		}
		for i := range want {
			if timer.delays[i] != want[i] {
				t.Errorf("run %d: delay before retry %d = %v, want %v", run, i+1, timer.delays[i], want[i])
			}
		}
	}
	if n := calls.Load(); n != 12 {
		t.Errorf("op called %d times, want 4 attempts per run", n)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		calls.Add(1)
		return reply{}, &StatusError{Code: 422, Body: "bad schema"}
	}

	c := NewCall(Policy{Name: "test", MaxRetries: 3, BaseDelay: time.Millisecond, FailureThreshold: 1}, op, nil)
	_, err := c.Execute(context.Background(), "a")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 422 {
		t.Fatalf("Execute() error = %v, want status 422", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Errorf("client error reported as exhaustion: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("op called %d times, want 1", n)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %v, client errors must not trip the breaker", c.State())
	}
}

func TestCallTimeoutIsTransient(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		calls.Add(1)
		<-ctx.Done()
		return reply{}, ctx.Err()
	}

	c := NewCall(Policy{Name: "slow", Timeout: 20 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond}, op, nil)
	_, err := c.Execute(context.Background(), "a")
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want exhausted timeout", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("op called %d times, want 2", n)
	}
}

func TestCallDegradesAfterExhaustion(t *testing.T) {
	op := func(ctx context.Context, req string) (reply, error) {
		return reply{}, &StatusError{Code: 500}
	}

	c := NewCall(Policy{Name: "classifier", MaxRetries: 2, BaseDelay: time.Millisecond}, op, nil,
		WithFallback[string, reply](degradedReply))
	got, err := c.Execute(context.Background(), "a")
	if err != nil {
		t.Fatalf("Execute() error = %v, want degraded response", err)
	}
	if !got.Degraded || len(got.Items) != 0 {
		t.Errorf("Execute() = %+v, want degraded empty reply", got)
	}
}

func TestCallPropagatesExhaustionButDegradesOpenCircuit(t *testing.T) {
	clock := newFakeClock()
	op := func(ctx context.Context, req string) (reply, error) {
		return reply{}, &StatusError{Code: 502}
	}

	c := NewCall(Policy{
		Name:                "structured",
		MaxRetries:          1,
		BaseDelay:           time.Millisecond,
		FailureThreshold:    2,
		OpenDuration:        time.Minute,
		PropagateExhaustion: true,
	}, op, nil, WithFallback[string, reply](degradedReply), WithClock[string, reply](clock.now))

	if _, err := c.Execute(context.Background(), "a"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("first Execute() error = %v, want ErrExhausted", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("State() = %v, want open", c.State())
	}

	got, err := c.Execute(context.Background(), "a")
	if err != nil || !got.Degraded {
		t.Errorf("Execute() with open circuit = %+v, %v, want degraded reply", got, err)
	}
}

func TestCircuitOpensAndFailsFast(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		calls.Add(1)
		return reply{}, &StatusError{Code: 503}
	}

	c := NewCall(Policy{
		Name:             "generative",
		Timeout:          time.Second,
		MaxRetries:       0,
		FailureThreshold: 3,
		OpenDuration:     time.Minute,
	}, op, nil, WithFallback[string, reply](degradedReply), WithClock[string, reply](clock.now))

	for i := 0; i < 3; i++ {
		if _, err := c.Execute(context.Background(), "a"); err != nil {
			t.Fatalf("Execute() #%d error = %v", i, err)
		}
	}
	if c.State() != StateOpen {
		t.Fatalf("State() = %v, want open", c.State())
	}

	start := time.Now()
	got, err := c.Execute(context.Background(), "a")
	elapsed := time.Since(start)
	if err != nil || !got.Degraded {
		t.Errorf("Execute() = %+v, %v, want degraded", got, err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("op called %d times while open, want 3", n)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("open circuit took %s, want near-zero latency", elapsed)
	}
}

func TestCircuitHalfOpenTrial(t *testing.T) {
	clock := newFakeClock()
	var fail atomic.Bool
	fail.Store(true)
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		calls.Add(1)
		if fail.Load() {
			return reply{}, &StatusError{Code: 500}
		}
		return reply{Items: []string{"ok"}}, nil
	}

	c := NewCall(Policy{Name: "classifier", FailureThreshold: 1, OpenDuration: 30 * time.Second}, op, nil,
		WithClock[string, reply](clock.now))

	if _, err := c.Execute(context.Background(), "a"); err == nil {
		t.Fatal("expected failure to open the circuit")
	}
	if _, err := c.Execute(context.Background(), "a"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want ErrCircuitOpen", err)
	}

	// failed trial reopens and restarts the cool-down
	clock.advance(30 * time.Second)
	if _, err := c.Execute(context.Background(), "a"); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("half-open trial error = %v, want remote failure", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("State() = %v after failed trial, want open", c.State())
	}
	clock.advance(10 * time.Second)
	if _, err := c.Execute(context.Background(), "a"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want ErrCircuitOpen during restarted cool-down", err)
	}

	// successful trial closes
	fail.Store(false)
	clock.advance(30 * time.Second)
	if _, err := c.Execute(context.Background(), "a"); err != nil {
		t.Fatalf("half-open trial error = %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %v, want closed", c.State())
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("op called %d times, want 3", n)
	}
}

func TestHalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(1, time.Second, clock.now)
	b.failure()
	clock.advance(time.Second)

	if !b.allow() {
		t.Fatal("first caller after cool-down must be admitted")
	}
	if b.allow() {
		t.Error("second caller admitted while trial in flight")
	}
	b.success()
	if !b.allow() || !b.allow() {
		t.Error("closed breaker must admit every caller")
	}
}

func TestCallCancellationAbortsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	op := func(ctx context.Context, req string) (reply, error) {
		calls.Add(1)
		return reply{}, &StatusError{Code: 503}
	}

	c := NewCall(Policy{Name: "test", MaxRetries: 3, BaseDelay: 10 * time.Second}, op, nil,
		WithFallback[string, reply](degradedReply))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Execute(ctx, "a")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %s, backoff sleep was not interrupted", elapsed)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("op called %d times, want 1", n)
	}
}

func TestCallRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	op := func(ctx context.Context, req string) (reply, error) {
		called = true
		return reply{}, nil
	}

	c := NewCall(Policy{Name: "test"}, op, nil, WithFallback[string, reply](degradedReply))
	if _, err := c.Execute(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("op must not run with a cancelled context")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &StatusError{Code: 500}, true},
		{"rate limited", &StatusError{Code: 429}, true},
		{"bad request", &StatusError{Code: 400}, false},
		{"not found", fmt.Errorf("wrapped: %w", &StatusError{Code: 404}), false},
		{"timeout", ErrTimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"malformed", fmt.Errorf("%w: bad json", ErrMalformedResponse), true},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
