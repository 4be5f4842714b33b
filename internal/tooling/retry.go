package tooling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryPolicy controls how FetchFlow retries transient failures.
type RetryPolicy struct {
	Max      int           // retries after the first attempt
	Backoff  string        // constant | linear | exponential
	Delay    time.Duration // initial delay
	MaxDelay time.Duration // cap, zero means none
}

// DefaultRetryPolicy retries twice with exponential backoff from 500ms.
var DefaultRetryPolicy = RetryPolicy{Max: 2, Backoff: "exponential", Delay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryableError classifies transport errors. Cancellation is final.
func retryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoff returns the delay before retry number attempt (zero based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	var delay time.Duration
	switch p.Backoff {
	case "exponential":
		delay = p.Delay << attempt
	case "linear":
		delay = p.Delay * time.Duration(attempt+1)
	default:
		delay = p.Delay
	}
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	return delay
}

// wait sleeps for delay or returns early when ctx is done.
func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
