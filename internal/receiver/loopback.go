// ABOUTME: In-process delivery.Transport that hands frames straight to a Handler.
// ABOUTME: Exercises the full encode/decode path without a network.

package receiver

import (
	"context"

	"github.com/2389/courier/internal/delivery"
	"github.com/2389/courier/internal/wire"
)

// Loopback delivers messages to a local Handler through the wire codec.
type Loopback struct {
	handler *Handler
	codec   wire.Codec
}

// NewLoopback creates a transport backed by h.
func NewLoopback(h *Handler) *Loopback {
	return &Loopback{handler: h, codec: h.codec}
}

// Send encodes msg, hands it to the handler, and converts non-success codes
// into *delivery.StatusError.
func (l *Loopback) Send(ctx context.Context, msg delivery.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := l.codec.Encode(wire.NewFrame(msg.Type, msg.ScopeID, msg.Payload()))
	if err != nil {
		return err
	}
	code, err := l.handler.HandleBytes(ctx, b)
	if err != nil {
		return err
	}
	reg := l.handler.Registry()
	if reg.Succeeded(code) {
		return nil
	}
	return delivery.NewStatusError(reg, code)
}
