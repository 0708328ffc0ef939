package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// ErrRetriesExhausted is matched by the error WithRetry returns once every
// attempt has failed with a retryable error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy bounds WithRetry.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy makes two attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Backoff: time.Second}

// TransportError is a non-2xx response from the service, or a network fault
// when StatusCode is zero.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport fault: %v", e.Err)
	}
	msg := fmt.Sprintf("request failed with status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed. Every network
// fault and non-2xx status is retried except 400 and 401, which a repeat of
// the same request cannot fix. 422 carries relay failures and is retried.
func (e *TransportError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return false
	default:
		return true
	}
}

// RetryError carries the last failure after the retry budget is spent.
type RetryError struct {
	Attempts int
	Body     string
	Err      error
}

func (e *RetryError) Error() string {
	detail := e.Body
	if detail == "" {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("failed after %d attempts: %s", e.Attempts, detail)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// WithRetry runs op until it succeeds, fails permanently, or MaxAttempts
// attempts have been made, sleeping Backoff between attempts. Only retryable
// *TransportError failures are retried; anything else is returned as-is after
// the first attempt.
func WithRetry(ctx context.Context, op func(context.Context) error, policy RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", push.ErrCancelled, err)
	}

	var (
		attempts int
		last     error
	)
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Backoff), uint64(policy.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, b)
	switch {
	case err == nil:
		return nil
	case !isRetryable(last):
		return last
	case ctx.Err() != nil:
		return fmt.Errorf("%w after %d attempts: %w", push.ErrCancelled, attempts, ctx.Err())
	}

	retryErr := &RetryError{Attempts: attempts, Err: last}
	var te *TransportError
	if errors.As(last, &te) {
		retryErr.Body = te.Body
	}
	return retryErr
}

func isRetryable(err error) bool {
	if err == nil || push.IsClientError(err) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}
