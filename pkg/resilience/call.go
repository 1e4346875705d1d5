package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// Policy tunes one remote endpoint.
type Policy struct {
	Name string `mapstructure:"-"`
	// Timeout bounds each attempt. Zero leaves attempts bounded only by ctx.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries counts retries after the first attempt.
	MaxRetries int `mapstructure:"retries"`
	// BaseDelay is the first backoff; each following one doubles it.
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// FailureThreshold is the number of consecutive transient failures
	// that opens the circuit. Zero disables the breaker.
	FailureThreshold int           `mapstructure:"failure_threshold"`
	OpenDuration     time.Duration `mapstructure:"open_duration"`
	// PropagateExhaustion returns an error instead of the fallback when
	// retries run out. An open circuit still degrades.
	PropagateExhaustion bool `mapstructure:"propagate_exhaustion"`
}

// Operation is one idempotent remote request.
type Operation[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Option configures a Call.
type Option[Req, Resp any] func(*Call[Req, Resp])

// WithFallback sets the degraded response returned instead of an error.
func WithFallback[Req, Resp any](fn func(Req) Resp) Option[Req, Resp] {
	return func(c *Call[Req, Resp]) {
		c.fallback = fn
	}
}

// WithClock replaces time.Now for the breaker.
func WithClock[Req, Resp any](now func() time.Time) Option[Req, Resp] {
	return func(c *Call[Req, Resp]) {
		c.now = now
	}
}

// withTimer replaces the retry backoff timer.
func withTimer[Req, Resp any](t retry.Timer) Option[Req, Resp] {
	return func(c *Call[Req, Resp]) {
		c.timer = t
	}
}

// Call executes an Operation under timeout, retry and circuit breaker.
// The breaker state lives as long as the Call and is shared by every request
// going through it.
type Call[Req, Resp any] struct {
	policy   Policy
	op       Operation[Req, Resp]
	breaker  *breaker
	fallback func(Req) Resp
	now      func() time.Time
	timer    retry.Timer
	logger   logger.Logger
}

// NewCall builds a Call for op.
func NewCall[Req, Resp any](policy Policy, op Operation[Req, Resp], log logger.Logger, opts ...Option[Req, Resp]) *Call[Req, Resp] {
	if log == nil {
		log = logger.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	c := &Call[Req, Resp]{
		policy: policy,
		op:     op,
		now:    time.Now,
		logger: log.With(logger.String("adapter", policy.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = newBreaker(policy.FailureThreshold, policy.OpenDuration, c.now)
	if c.breaker != nil {
		c.breaker.onChange = func(from, to State) {
			c.logger.Warn("Circuit state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}
	}
	return c
}

// Name returns the adapter name from the policy.
func (c *Call[Req, Resp]) Name() string {
	return c.policy.Name
}

// State returns the current circuit state.
func (c *Call[Req, Resp]) State() State {
	return c.breaker.current()
}

// Execute runs the operation. Cancellation of ctx is always returned as the
// context error; other failures degrade to the fallback when one is set.
func (c *Call[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	log := logger.FromContext(ctx, c.logger)

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var (
		result   Resp
		attempts atomic.Int32
	)
	start := c.now()

	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(c.policy.MaxRetries + 1)),
		retry.Delay(c.policy.BaseDelay),
		// BackOffDelay alone: BaseDelay·2^(n-1) before retry n, no jitter.
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("Remote call attempt failed",
				logger.Int("attempt", int(n)+1),
				logger.Error(err),
			)
		}),
	}
	if c.timer != nil {
		retryOpts = append(retryOpts, retry.WithTimer(c.timer))
	}

	err := retry.Do(
		func() error {
			if !c.breaker.allow() {
				return retry.Unrecoverable(ErrCircuitOpen)
			}
			attempts.Add(1)

			resp, err := c.attempt(ctx, req)
			switch {
			case err == nil:
				c.breaker.success()
				result = resp
				return nil
			case ctx.Err() != nil:
				c.breaker.release()
				return retry.Unrecoverable(ctx.Err())
			case IsTransient(err):
				c.breaker.failure()
				return err
			default:
				c.breaker.release()
				return retry.Unrecoverable(err)
			}
		},
		retryOpts...,
	)

	if err == nil {
		log.Debug("Remote call succeeded",
			logger.Int("attempts", int(attempts.Load())),
			logger.Duration("elapsed", c.now().Sub(start)),
		)
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info("Remote call cancelled", logger.Int("attempts", int(attempts.Load())))
		return zero, ctxErr
	}

	if errors.Is(err, ErrCircuitOpen) {
		return c.degrade(log, req, fmt.Errorf("%s: %w", c.policy.Name, ErrCircuitOpen))
	}

	if IsTransient(err) {
		err = fmt.Errorf("%s: %w after %d attempts: %w", c.policy.Name, ErrExhausted, attempts.Load(), err)
	} else {
		err = fmt.Errorf("%s: %w", c.policy.Name, err)
	}
	log.Error("Remote call failed",
		logger.Int("attempts", int(attempts.Load())),
		logger.Duration("elapsed", c.now().Sub(start)),
		logger.Error(err),
	)

	if c.policy.PropagateExhaustion {
		return zero, err
	}
	return c.degrade(log, req, err)
}

func (c *Call[Req, Resp]) attempt(ctx context.Context, req Req) (Resp, error) {
	if c.policy.Timeout <= 0 {
		return c.op(ctx, req)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	resp, err := c.op(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return resp, fmt.Errorf("%w after %s: %w", ErrTimeout, c.policy.Timeout, err)
	}
	return resp, err
}

func (c *Call[Req, Resp]) degrade(log logger.Logger, req Req, cause error) (Resp, error) {
	if c.fallback == nil {
		var zero Resp
		return zero, cause
	}
	log.Warn("Returning degraded response", logger.Error(cause))
	return c.fallback(req), nil
}
