// ABOUTME: Receiver-side frame handling: decode, dedup short-circuit, dispatch, status code.
// ABOUTME: Turns at-least-once delivery into idempotent processing.

package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/courier/internal/dedup"
	"github.com/2389/courier/internal/delivery"
	"github.com/2389/courier/internal/metrics"
	"github.com/2389/courier/internal/registry"
	"github.com/2389/courier/internal/wire"
)

// Processor consumes the payload of one message type. Returning a
// *delivery.StatusError selects the status code sent back; any other error
// maps to UNKNOWN_ERROR so the sender retries.
type Processor interface {
	Process(ctx context.Context, scopeID uint32, payload []byte) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, scopeID uint32, payload []byte) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, scopeID uint32, payload []byte) error {
	return f(ctx, scopeID, payload)
}

// Handler dispatches frames to processors by message type.
type Handler struct {
	registry   *registry.Registry
	store      *dedup.Store
	codec      wire.Codec
	processors map[uint8]Processor
	metrics    *metrics.Dedup
	logger     *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics counts dedup hits on m.
func WithMetrics(m *metrics.Dedup) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithCodec overrides the frame codec used by HandleBytes.
func WithCodec(c wire.Codec) Option {
	return func(h *Handler) { h.codec = c }
}

// NewHandler creates a handler that consults store before dispatching.
func NewHandler(reg *registry.Registry, store *dedup.Store, opts ...Option) *Handler {
	h := &Handler{
		registry:   reg,
		store:      store,
		codec:      wire.DefaultCodec(),
		processors: make(map[uint8]Processor),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "receiver")
	return h
}

// Register installs p for msgType, replacing any earlier processor.
// Registration must finish before the handler serves traffic.
func (h *Handler) Register(msgType uint8, p Processor) {
	h.processors[msgType] = p
}

// Registry returns the registry used to name codes.
func (h *Handler) Registry() *registry.Registry {
	return h.registry
}

// Handle processes one decoded frame and returns the status for the sender.
// A frame is recorded in the dedup store only after its processor succeeds,
// so two concurrent copies of one message may both be processed.
func (h *Handler) Handle(ctx context.Context, f wire.Frame) registry.Code {
	if f.IsEndOfStream() {
		h.logger.Debug("end of stream", "scope_id", f.ScopeID)
		return registry.OK
	}

	typeName := h.registry.TypeName(f.Type)
	p, ok := h.processors[f.Type]
	if !ok {
		h.logger.Warn("no processor for message type", "type", typeName, "scope_id", f.ScopeID)
		return registry.UnknownMessageType
	}

	if h.store.Contains(f.Type, f.Hash) {
		h.metrics.Hit()
		h.logger.Debug("duplicate frame",
			"type", typeName,
			"scope_id", f.ScopeID,
			"hash", f.Hash.String(),
		)
		return registry.AlreadyWritten
	}

	if err := h.process(ctx, p, f); err != nil {
		code := registry.UnknownError
		var se *delivery.StatusError
		if errors.As(err, &se) {
			code = se.Code
		}
		h.logger.Warn("processor failed",
			"type", typeName,
			"scope_id", f.ScopeID,
			"status", h.registry.Name(code),
			"error", err,
		)
		return code
	}

	h.store.Add(f.Type, f.ScopeID, f.Hash)
	return registry.OK
}

// HandleBytes decodes exactly one frame from b and handles it. Corrupt input
// yields CORRUPT_FRAME. Incomplete input is returned as an error wrapping
// wire.ErrIncomplete since no status can be assigned yet.
func (h *Handler) HandleBytes(ctx context.Context, b []byte) (registry.Code, error) {
	f, n, err := h.codec.Decode(b)
	if errors.Is(err, wire.ErrIncomplete) {
		return 0, err
	}
	if err != nil {
		h.logger.Warn("rejecting corrupt frame", "error", err)
		return registry.CorruptFrame, nil
	}
	if n != len(b) {
		h.logger.Warn("rejecting frame with trailing bytes", "trailing", len(b)-n)
		return registry.CorruptFrame, nil
	}
	return h.Handle(ctx, f), nil
}

// process runs p and converts a panic into a retryable failure.
func (h *Handler) process(ctx context.Context, p Processor, f wire.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return p.Process(ctx, f.ScopeID, f.Payload)
}
