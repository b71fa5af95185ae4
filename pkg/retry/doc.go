// Package retry provides backoff policies and the attempt loop that drives
// them.
//
// Policies:
//   - Exponential: Unit * 2^attempt (1, 2, 4, 8 units), optional MaxDelay cap
//   - Linear: Unit * 2 * (attempt+1) (2, 4, 6, 8 units)
//   - NoRetry: a single attempt, no delay
//
// Attempts are numbered from 0. A policy allows a retry after attempt a while
// a < maxAttempts, so a Run makes at most maxAttempts+1 calls.
//
// Basic Usage:
//
//	res, err := retry.Run(ctx, retry.Exponential{Unit: time.Second}, retry.DefaultConfig(),
//	    func(ctx context.Context, attempt int) error {
//	        return deliver(ctx)
//	    })
//	if err != nil {
//	    // invalid configuration or ctx cancelled (res.Outcome == OutcomeCancelled)
//	}
//	if !res.Delivered() {
//	    log.Printf("gave up: %s after %d attempts", res.Outcome, res.Attempts)
//	}
//
// Testing:
//
//	cfg := retry.Config{
//	    MaxAttempts: 3,
//	    After: func(d time.Duration) <-chan time.Time {
//	        delays = append(delays, d)
//	        ch := make(chan time.Time, 1)
//	        ch <- time.Time{}
//	        return ch
//	    },
//	}
//
// Waits use a per-call timer selected against ctx, so concurrent runs never
// block each other and cancellation aborts a wait immediately.
package retry
