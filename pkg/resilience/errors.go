package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects a call without attempting it.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrTimeout marks an attempt that exceeded its per-attempt deadline.
	ErrTimeout = errors.New("attempt timed out")
	// ErrExhausted marks a call whose retries all failed.
	ErrExhausted = errors.New("retries exhausted")
	// ErrMalformedResponse marks a remote payload that could not be decoded or validated.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is a non-2xx answer from a remote endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned status %d", e.Code)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code >= http.StatusInternalServerError ||
		e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusRequestTimeout
}

// IsTransient classifies err as retryable. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedResponse) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
