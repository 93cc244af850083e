// ABOUTME: gRPC client side of the delivery transport; implements delivery.Transport.
// ABOUTME: Non-success status codes come back as *delivery.StatusError.

package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/courier/internal/auth"
	"github.com/2389/courier/internal/delivery"
	"github.com/2389/courier/internal/registry"
	"github.com/2389/courier/internal/wire"
)

// Client sends messages to a remote Delivery service.
type Client struct {
	conn     grpc.ClientConnInterface
	closer   func() error
	registry *registry.Registry
	codec    wire.Codec
	timeout  time.Duration
	dialOpts []grpc.DialOption
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each attempt. A timed-out attempt is an ordinary
// retryable failure, distinct from cancellation of the caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithCodec overrides the frame codec.
func WithCodec(codec wire.Codec) ClientOption {
	return func(c *Client) { c.codec = codec }
}

// WithToken sends token as a bearer credential on every call. It only
// applies to clients built with Dial.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.dialOpts = append(c.dialOpts, grpc.WithPerRPCCredentials(auth.TokenCredentials{Token: token}))
	}
}

// NewClient wraps an existing connection. Close is a no-op for clients built
// this way; the caller owns conn.
func NewClient(conn grpc.ClientConnInterface, reg *registry.Registry, opts ...ClientOption) *Client {
	c := &Client{
		conn:     conn,
		closer:   func() error { return nil },
		registry: reg,
		codec:    wire.DefaultCodec(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to target over plaintext gRPC.
func Dial(target string, reg *registry.Registry, opts ...ClientOption) (*Client, error) {
	c := NewClient(nil, reg, opts...)
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.dialOpts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	c.conn = conn
	c.closer = conn.Close
	return c, nil
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	return c.closer()
}

// Send delivers msg in one call.
func (c *Client) Send(ctx context.Context, msg delivery.Message) error {
	b, err := c.codec.Encode(wire.NewFrame(msg.Type, msg.ScopeID, msg.Payload()))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.ID, delivery.NewStatusError(c.registry, registry.CorruptFrame))
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := new(wrapperspb.Int32Value)
	if err := c.conn.Invoke(callCtx, deliverMethod, wrapperspb.Bytes(b), out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		st := status.Convert(err)
		switch st.Code() {
		case codes.InvalidArgument:
			return fmt.Errorf("receiver refused frame: %s: %w", st.Message(), delivery.NewStatusError(c.registry, registry.CorruptFrame))
		case codes.Unauthenticated, codes.PermissionDenied:
			return fmt.Errorf("receiver refused credentials: %s: %w", st.Message(), delivery.NewStatusError(c.registry, registry.UnknownErrorNoRetry))
		}
		return fmt.Errorf("rpc %s: %s", st.Code(), st.Message())
	}

	code := registry.Code(out.GetValue())
	if c.registry.Succeeded(code) {
		return nil
	}
	return delivery.NewStatusError(c.registry, code)
}
