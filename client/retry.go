package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt. Values below 1 mean a single attempt.
	MaxAttempts int
	// Delay returns the wait before the given retry (1 for the first retry).
	Delay func(attempt int) time.Duration
}

// LinearBackoff waits step, 2*step, 3*step, ... between attempts.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       LinearBackoff(500 * time.Millisecond),
	}
}

// buildBackOff turns the policy into a backoff.BackOff bound to ctx.
func (p RetryPolicy) buildBackOff(ctx context.Context) backoff.BackOff {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.WithMaxRetries(&policyBackOff{delay: p.Delay}, uint64(maxAttempts-1))
	return backoff.WithContext(b, ctx)
}

// policyBackOff adapts a Delay func to backoff.BackOff.
type policyBackOff struct {
	delay func(attempt int) time.Duration
	retry int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.retry++
	if b.delay == nil {
		return 0
	}
	return b.delay(b.retry)
}

func (b *policyBackOff) Reset() {
	b.retry = 0
}

// transientError marks a failure that the retry loop may repeat.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// classifyTransport decides whether a failed round trip should be retried.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	// timeouts, refused connections and resets all surface from http.Client.Do
	return &transientError{err: err}
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// retry runs fn until it succeeds, fails permanently or the policy is exhausted.
// It returns the number of attempts made alongside the last error.
func retry(
	ctx context.Context,
	policy RetryPolicy,
	timer backoff.Timer,
	notify backoff.Notify,
	fn func(ctx context.Context) error,
) (int, error) {
	attempts := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var t *transientError
		if errors.As(err, &t) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.RetryNotifyWithTimer(operation, policy.buildBackOff(ctx), notify, timer)
	return attempts, err
}
