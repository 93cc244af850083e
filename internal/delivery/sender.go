// ABOUTME: Blocking retry loop that drives a Transport under a Policy.
// ABOUTME: Cancellation propagates; exhaustion is logged and reported only through Deliver.

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/2389/courier/internal/metrics"
	"github.com/2389/courier/internal/registry"
)

// Sender delivers one message at a time with bounded retry. Send and Deliver
// block the calling goroutine for the whole backoff sequence, so call them
// from a dedicated worker such as a stream.Stream, never a request handler.
type Sender struct {
	transport Transport
	policy    Policy
	logger    *slog.Logger
	metrics   *metrics.Delivery
	registry  *registry.Registry
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records attempts and outcomes on m.
func WithMetrics(m *metrics.Delivery) Option {
	return func(s *Sender) { s.metrics = m }
}

// WithRegistry resolves message-type names for logs and metrics.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Sender) { s.registry = reg }
}

// NewSender creates a Sender over transport.
func NewSender(transport Transport, policy Policy, opts ...Option) *Sender {
	s := &Sender{
		transport: transport,
		policy:    policy,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sender")
	return s
}

// Send delivers msg and returns an error only when the sequence was
// cancelled. A message dropped after exhausting its attempts, or rejected
// with a terminal status, is logged and Send returns nil. Callers that need
// confirmation use Deliver.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	out := s.Deliver(ctx, msg)
	if out.Result == ResultCancelled {
		return out.Err
	}
	return nil
}

// Deliver runs the retry loop for msg and reports how it ended.
func (s *Sender) Deliver(ctx context.Context, msg Message) Outcome {
	typeName := s.typeName(msg.Type)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return s.finish(msg, typeName, ResultCancelled, attempt-1, fmt.Errorf("delivering %s: %w", msg.ID, err))
		}

		err := s.transport.Send(ctx, msg)
		s.logAttempt(msg, typeName, attempt, err)

		if err == nil {
			s.metrics.Attempt(typeName, "ok")
			return s.finish(msg, typeName, ResultDelivered, attempt, nil)
		}
		s.metrics.Attempt(typeName, "error")

		if IsCancellation(err) || ctx.Err() != nil {
			return s.finish(msg, typeName, ResultCancelled, attempt, fmt.Errorf("delivering %s: %w", msg.ID, err))
		}
		if !s.policy.retry(err) {
			return s.finish(msg, typeName, ResultRejected, attempt, err)
		}
		if s.policy.exhausted(attempt) {
			return s.finish(msg, typeName, ResultExhausted, attempt, err)
		}

		wait := s.policy.Backoff.Wait(attempt)
		if err := sleep(ctx, wait); err != nil {
			return s.finish(msg, typeName, ResultCancelled, attempt, fmt.Errorf("delivering %s: %w", msg.ID, err))
		}
	}
}

func (s *Sender) logAttempt(msg Message, typeName string, attempt int, err error) {
	if err != nil {
		s.logger.Warn("delivery attempt failed",
			"message_id", msg.ID,
			"type", typeName,
			"scope_id", msg.ScopeID,
			"attempt", attempt,
			"error", err,
		)
		return
	}
	s.logger.Info("delivery attempt succeeded",
		"message_id", msg.ID,
		"type", typeName,
		"scope_id", msg.ScopeID,
		"attempt", attempt,
	)
}

func (s *Sender) finish(msg Message, typeName string, result Result, attempts int, err error) Outcome {
	s.metrics.Outcome(typeName, result.String())

	switch result {
	case ResultExhausted:
		s.logger.Error("message dropped after exhausting attempts",
			"message_id", msg.ID,
			"type", typeName,
			"attempts", attempts,
			"error", err,
		)
	case ResultRejected:
		s.logger.Error("message rejected by receiver",
			"message_id", msg.ID,
			"type", typeName,
			"attempts", attempts,
			"error", err,
		)
	case ResultCancelled:
		s.logger.Info("delivery cancelled",
			"message_id", msg.ID,
			"type", typeName,
			"attempts", attempts,
		)
	}

	return Outcome{Message: msg, Result: result, Attempts: attempts, Err: err}
}

func (s *Sender) typeName(t uint8) string {
	if s.registry != nil {
		return s.registry.TypeName(t)
	}
	return strconv.Itoa(int(t))
}
