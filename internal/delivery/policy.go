// ABOUTME: Retry policy: predicate, Fibonacci backoff sequence, and attempt bound.
// ABOUTME: Kept as plain data so the retry state machine is directly testable.

package delivery

import (
	"context"
	"errors"
	"math"
	"time"
)

// Backoff produces the Fibonacci wait sequence 1,1,2,3,5,... times Unit, with
// every wait capped at MaxWait.
type Backoff struct {
	Unit    time.Duration
	MaxWait time.Duration
}

// Wait returns the delay after the given failed attempt (1-based).
func (b Backoff) Wait(attempt int) time.Duration {
	if attempt < 1 || b.Unit <= 0 {
		return 0
	}
	prev, cur := int64(0), int64(1)
	for i := 1; i < attempt; i++ {
		prev, cur = cur, prev+cur
		if b.MaxWait > 0 && time.Duration(cur) > b.MaxWait/b.Unit {
			return b.MaxWait
		}
		if cur > math.MaxInt64/int64(b.Unit) {
			return time.Duration(math.MaxInt64)
		}
	}
	d := time.Duration(cur) * b.Unit
	if b.MaxWait > 0 && d > b.MaxWait {
		return b.MaxWait
	}
	return d
}

// RetryPredicate decides whether a failed attempt may be retried.
type RetryPredicate func(err error) bool

// Policy bounds and paces a delivery sequence.
type Policy struct {
	Retry       RetryPredicate
	Backoff     Backoff
	MaxAttempts int // zero means unbounded
}

// DefaultPolicy retries until success or cancellation with a 100ms Fibonacci
// unit capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		Retry: RetryUnlessTerminal,
		Backoff: Backoff{
			Unit:    100 * time.Millisecond,
			MaxWait: 30 * time.Second,
		},
	}
}

// IsCancellation reports whether err is an interruption signal.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RetryAll retries any failure except cancellation.
func RetryAll(err error) bool {
	return !IsCancellation(err)
}

// RetryUnlessTerminal retries any failure except cancellation and a status
// the registry marks terminal.
func RetryUnlessTerminal(err error) bool {
	if IsCancellation(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

func (p Policy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

func (p Policy) retry(err error) bool {
	if IsCancellation(err) {
		return false
	}
	if p.Retry == nil {
		return RetryUnlessTerminal(err)
	}
	return p.Retry(err)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
