// Package retry provides bounded retry with exponential backoff for transient failures.
//
// It wraps github.com/cenkalti/backoff/v5 and consults the trail error package
// to decide what is worth retrying. The delivery path uses PolicyConnection so
// that only sink connection failures are attempted again; schema mismatches
// and constraint violations fail on the first attempt.
//
// Example usage:
//
//	cfg := retry.Config{
//		MaxAttempts:  5,
//		InitialDelay: 100 * time.Millisecond,
//		MaxDelay:     5 * time.Second,
//		Policy:       retry.PolicyConnection,
//	}
//
//	err := retry.Do(ctx, cfg, func() error {
//		return sink.Append(ctx, rec)
//	})
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Do executes fn with retry logic based on the configuration.
// It respects context cancellation and applies exponential backoff between retries.
//
// The function will retry on errors according to the configured policy:
//   - PolicyTemporary: retry errors.Temporary errors and connection failures
//   - PolicyConnection: retry sink connection failures only
//   - PolicyAll: retry all errors
//   - PolicyNone: never retry (execute once)
//   - Custom policy functions can be provided via Config.PolicyFunc
//
// Returns the error from the last attempt if all retries are exhausted.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithData(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithData executes fn with retry logic and returns its value.
// It works the same as Do but supports functions that return both a value and an error.
//
// Example:
//
//	n, err := retry.DoWithData(ctx, cfg, func() (int64, error) {
//		return schema.Count(ctx)
//	})
func DoWithData[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var attempt uint
	operation := func() (T, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !cfg.shouldRetry(err) {
			// Mark as permanent error to stop retrying
			var zero T
			return zero, backoff.Permanent(err)
		}

		return result, err
	}

	return backoff.Retry(ctx, operation, cfg.options(&attempt)...)
}

// options translates the configuration into backoff retry options.
func (c Config) options(attempt *uint) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.Jitter

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.MaxAttempts),
	}

	if c.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.MaxElapsedTime))
	}

	if c.Notify != nil {
		notify := c.Notify
		opts = append(opts, backoff.WithNotify(func(err error, d time.Duration) {
			notify(err, *attempt, d)
		}))
	}

	return opts
}
