// Package delivery implements the client-side retry engine.
//
// A Sender wraps a Transport and a Policy:
//
//	policy := delivery.Policy{
//	    Retry:       delivery.RetryUnlessTerminal,
//	    Backoff:     delivery.Backoff{Unit: 100 * time.Millisecond, MaxWait: 30 * time.Second},
//	    MaxAttempts: 10,
//	}
//	sender := delivery.NewSender(transport, policy, delivery.WithLogger(logger))
//
// The loop is attempting → waiting → attempting → terminal. Waits follow the
// Fibonacci sequence scaled by Backoff.Unit and capped at Backoff.MaxWait.
//
// # Terminal States
//
//   - delivered: the transport returned nil.
//   - exhausted: MaxAttempts failures. Send logs and returns nil.
//   - rejected: the receiver returned a terminal status. Send logs and returns nil.
//   - cancelled: ctx was cancelled or the transport returned ErrCancelled.
//     Send returns the error; callers must stop, not log and continue.
//
// Deliver returns an Outcome for callers that need to observe exhaustion.
package delivery
