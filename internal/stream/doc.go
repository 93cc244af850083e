// Package stream provides the fire-and-forget path in front of a delivery.Sender.
//
// Producers call Send from any goroutine; it never blocks and never fails.
// One worker, run with Run or Start/Stop, takes messages in enqueue order and
// delivers each to a terminal outcome before touching the next. A slow or
// retrying message therefore delays everything behind it.
//
// Cancellation is the only way to stop the worker, and a stopped stream
// stays stopped. Callers that need to know whether a message arrived use
// SendNotify or a stream-wide Observer.
package stream
