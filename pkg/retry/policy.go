package retry

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy identifies a backoff policy variant.
type Strategy int

const (
	// StrategyUnknown is the zero value and never produced by a policy.
	StrategyUnknown Strategy = iota
	// StrategyExponential doubles the delay with each retry.
	StrategyExponential
	// StrategyLinear grows the delay by a fixed step with each retry.
	StrategyLinear
	// StrategyNone never retries.
	StrategyNone
)

// DefaultUnit is the time unit used when a policy has no Unit set.
const DefaultUnit = time.Second

// String returns the lowercase name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyExponential:
		return "exponential"
	case StrategyLinear:
		return "linear"
	case StrategyNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name as produced by String.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exponential":
		return StrategyExponential, nil
	case "linear":
		return StrategyLinear, nil
	case "none", "noretry", "no-retry":
		return StrategyNone, nil
	default:
		return StrategyUnknown, fmt.Errorf("retry: unknown strategy %q", s)
	}
}

// Policy decides whether a failed attempt is retried and how long to wait
// before the next one. Implementations are immutable and safe for
// concurrent use.
type Policy interface {
	// ShouldRetry reports whether attempt (0-based) may be followed by another.
	ShouldRetry(attempt, maxAttempts int) bool
	// DelayFor returns the wait after a failed attempt. Never negative.
	DelayFor(attempt int) time.Duration
	// Strategy identifies the variant.
	Strategy() Strategy
}

var (
	_ Policy = Exponential{}
	_ Policy = Linear{}
	_ Policy = NoRetry{}
)

// New returns the policy for strategy s using unit as the time unit.
func New(s Strategy, unit time.Duration) (Policy, error) {
	switch s {
	case StrategyExponential:
		return Exponential{Unit: unit}, nil
	case StrategyLinear:
		return Linear{Unit: unit}, nil
	case StrategyNone:
		return NoRetry{}, nil
	default:
		return nil, fmt.Errorf("retry: unsupported strategy %s", s)
	}
}

// Exponential waits Unit * 2^attempt: 1, 2, 4, 8 units.
type Exponential struct {
	// Unit is one time unit (DefaultUnit when zero).
	Unit time.Duration
	// MaxDelay caps the delay; zero leaves it uncapped.
	MaxDelay time.Duration
}

// ShouldRetry implements Policy.
func (Exponential) ShouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}

// DelayFor implements Policy.
func (p Exponential) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	unit := unitOrDefault(p.Unit)
	var d time.Duration
	if unit > time.Duration(math.MaxInt64>>uint(attempt)) {
		d = time.Duration(math.MaxInt64)
	} else {
		d = unit << uint(attempt)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Strategy implements Policy.
func (Exponential) Strategy() Strategy { return StrategyExponential }

// Linear waits Unit * 2 * (attempt+1): 2, 4, 6, 8 units.
type Linear struct {
	// Unit is one time unit (DefaultUnit when zero).
	Unit time.Duration
}

// ShouldRetry implements Policy.
func (Linear) ShouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}

// DelayFor implements Policy.
func (p Linear) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	unit := unitOrDefault(p.Unit)
	if int64(attempt) >= math.MaxInt64/2/int64(unit) {
		return time.Duration(math.MaxInt64)
	}
	return unit * time.Duration(2*(int64(attempt)+1))
}

// Strategy implements Policy.
func (Linear) Strategy() Strategy { return StrategyLinear }

// NoRetry never retries. Used for fire-once channels.
type NoRetry struct{}

// ShouldRetry implements Policy.
func (NoRetry) ShouldRetry(int, int) bool { return false }

// DelayFor implements Policy.
func (NoRetry) DelayFor(int) time.Duration { return 0 }

// Strategy implements Policy.
func (NoRetry) Strategy() Strategy { return StrategyNone }

func unitOrDefault(u time.Duration) time.Duration {
	if u <= 0 {
		return DefaultUnit
	}
	return u
}
