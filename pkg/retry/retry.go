package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is the terminal state of a Run.
type Outcome int

const (
	// OutcomeSuccess means an attempt succeeded.
	OutcomeSuccess Outcome = iota
	// OutcomeExhausted means the attempt limit was reached while the policy
	// still allowed retrying.
	OutcomeExhausted
	// OutcomeNonRetryable means the policy forbade retrying, or Halt stopped
	// the run. It wins over OutcomeExhausted when both apply.
	OutcomeNonRetryable
	// OutcomeCancelled means the context ended before a terminal state.
	OutcomeCancelled
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeNonRetryable:
		return "non_retryable"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	// ErrInvalidMaxAttempts is returned for a negative attempt limit.
	ErrInvalidMaxAttempts = errors.New("retry: max attempts must not be negative")
	// ErrNilPolicy is returned when Run is called without a policy.
	ErrNilPolicy = errors.New("retry: nil policy")
)

// AttemptFunc performs one attempt. A nil error means success; every
// non-nil error is a failure the policy may retry.
type AttemptFunc func(ctx context.Context, attempt int) error

// Config controls a Run.
type Config struct {
	// MaxAttempts bounds retries: attempts 0..MaxAttempts may run, so at most
	// MaxAttempts+1 calls. Zero means call once and never retry.
	MaxAttempts int
	// OnAttempt is called after every attempt with its error (nil on success).
	OnAttempt func(attempt int, err error)
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Halt stops retrying for errors it reports as fatal (nil = never).
	Halt func(err error) bool
	// After creates a timer channel (for testing, defaults to a stoppable timer)
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns a Config allowing three retries.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3}
}

// Normalize validates the configuration.
func (c *Config) Normalize() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxAttempts, c.MaxAttempts)
	}
	return nil
}

// Result describes how a Run terminated.
type Result struct {
	Outcome Outcome
	// Attempts is the number of AttemptFunc calls made.
	Attempts int
	// Waited is the sum of delays fully waited between attempts.
	Waited time.Duration
	// LastErr is the error of the last failed attempt.
	LastErr error
}

// Delivered reports whether the run ended in success.
func (r Result) Delivered() bool { return r.Outcome == OutcomeSuccess }

// Run drives fn through policy until success, exhaustion, a non-retryable
// decision or cancellation of ctx.
//
// The returned error is non-nil only for an invalid configuration or a
// cancelled context; attempt failures are reported through Result.
func Run(ctx context.Context, policy Policy, config Config, fn AttemptFunc) (Result, error) {
	cfg := config
	if err := cfg.Normalize(); err != nil {
		return Result{}, err
	}
	if policy == nil {
		return Result{}, ErrNilPolicy
	}

	var res Result
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			return res, err
		}

		err := fn(ctx, attempt)
		res.Attempts++
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, err)
		}
		if err == nil {
			res.Outcome = OutcomeSuccess
			res.LastErr = nil
			return res, nil
		}
		res.LastErr = err

		if cfg.Halt != nil && cfg.Halt(err) {
			res.Outcome = OutcomeNonRetryable
			return res, nil
		}
		if !policy.ShouldRetry(attempt, cfg.MaxAttempts) {
			// A policy that would refuse even with room left is what stopped
			// the run, not the limit.
			if policy.ShouldRetry(attempt, attempt+1) {
				res.Outcome = OutcomeExhausted
			} else {
				res.Outcome = OutcomeNonRetryable
			}
			return res, nil
		}

		delay := policy.DelayFor(attempt)
		if delay < 0 {
			delay = 0
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if err := cfg.wait(ctx, delay); err != nil {
			res.Outcome = OutcomeCancelled
			return res, err
		}
		res.Waited += delay
	}
}

// wait suspends only the calling goroutine.
func (c Config) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if c.After != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.After(d):
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
