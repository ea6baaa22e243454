package retry

import (
	"time"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
)

// Policy defines when a function should be retried.
type Policy int

const (
	// PolicyTemporary retries errors.Temporary errors and sink connection failures.
	PolicyTemporary Policy = iota
	// PolicyAll retries all errors.
	PolicyAll
	// PolicyNone never retries (executes once).
	PolicyNone
	// PolicyConnection retries only sink connection failures. Schema mismatches
	// and constraint violations are returned after the first attempt.
	PolicyConnection
)

// PolicyFunc is a custom function that determines if an error should be retried.
type PolicyFunc func(error) bool

// NotifyFunc is called before each retry with the error that caused it,
// the attempt number that failed (starting at 1) and the upcoming delay.
type NotifyFunc func(err error, attempt uint, delay time.Duration)

// Config holds the retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (initial attempt + retries).
	// Default is 10.
	MaxAttempts uint

	// InitialDelay is the initial backoff delay. Default is 100ms.
	InitialDelay time.Duration

	// MaxDelay is the maximum backoff delay. Default is 5 seconds.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier. Default is 2.0.
	Multiplier float64

	// Jitter is the randomization factor (0.0 to 1.0). Default is 0.25 (±25%).
	Jitter float64

	// MaxElapsedTime is the maximum total time for all retry attempts.
	// 0 means no time limit. Default is 0.
	MaxElapsedTime time.Duration

	// Policy determines which errors should be retried.
	// Default is PolicyTemporary.
	Policy Policy

	// PolicyFunc is a custom policy function. If set, it takes precedence over Policy.
	PolicyFunc PolicyFunc

	// Notify, if set, observes every retry.
	Notify NotifyFunc
}

// FromDispatch builds the delivery retry configuration from the dispatch
// section of the trail configuration. Only connection failures are retried.
func FromDispatch(cfg config.DispatchConfig) Config {
	return Config{
		MaxAttempts:    cfg.MaxAttempts,
		InitialDelay:   cfg.InitialBackoff,
		MaxDelay:       cfg.MaxBackoff,
		MaxElapsedTime: cfg.MaxElapsed,
		Policy:         PolicyConnection,
	}
}

// withDefaults returns a config with default values applied.
func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 10
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Jitter == 0 {
		c.Jitter = 0.25 // ±25%
	}
	return c
}

// shouldRetry determines if an error should be retried based on the configured policy.
func (c Config) shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Custom policy function takes precedence
	if c.PolicyFunc != nil {
		return c.PolicyFunc(err)
	}

	switch c.Policy {
	case PolicyAll:
		return true
	case PolicyNone:
		return false
	case PolicyConnection:
		return errors.IsConnectionFailure(err)
	default:
		return errors.IsTemporary(err)
	}
}
