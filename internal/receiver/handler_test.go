// ABOUTME: Tests for frame handling: dispatch, dedup short-circuit, and status mapping.
// ABOUTME: Also drives a delivery.Sender end to end through the loopback transport.

package receiver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/courier/internal/dedup"
	"github.com/2389/courier/internal/delivery"
	"github.com/2389/courier/internal/registry"
	"github.com/2389/courier/internal/wire"
)

const typePing uint8 = 1

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (c *countingProcessor) Process(ctx context.Context, scopeID uint32, payload []byte) error {
	c.calls.Add(1)
	return c.err
}

func newTestHandler(t *testing.T) (*Handler, *dedup.Store, *countingProcessor) {
	t.Helper()
	store := dedup.New(100)
	h := NewHandler(registry.Default(), store)
	p := &countingProcessor{}
	h.Register(typePing, p)
	return h, store, p
}

func TestHandleDispatchesAndRecords(t *testing.T) {
	h, store, p := newTestHandler(t)
	f := wire.NewFrame(typePing, 3, []byte("hello"))

	assert.Equal(t, registry.OK, h.Handle(context.Background(), f))
	assert.Equal(t, int32(1), p.calls.Load())
	assert.True(t, store.Contains(typePing, wire.Sum([]byte("hello"))))
}

func TestHandleDuplicateShortCircuits(t *testing.T) {
	h, _, p := newTestHandler(t)
	f := wire.NewFrame(typePing, 3, []byte("hello"))

	require.Equal(t, registry.OK, h.Handle(context.Background(), f))
	assert.Equal(t, registry.AlreadyWritten, h.Handle(context.Background(), f))

	other := wire.NewFrame(typePing, 99, []byte("hello"))
	assert.Equal(t, registry.AlreadyWritten, h.Handle(context.Background(), other),
		"another scope with the same bytes is still a duplicate")
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestHandleUnknownType(t *testing.T) {
	h, store, _ := newTestHandler(t)
	f := wire.NewFrame(42, 1, []byte("x"))

	assert.Equal(t, registry.UnknownMessageType, h.Handle(context.Background(), f))
	assert.Equal(t, 0, store.Len())
}

func TestHandleEndOfStream(t *testing.T) {
	h, store, p := newTestHandler(t)
	assert.Equal(t, registry.OK, h.Handle(context.Background(), wire.EndOfStream(7)))
	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, 0, store.Len())
}

func TestHandleProcessorErrors(t *testing.T) {
	reg := registry.Default()
	tests := []struct {
		name string
		err  error
		want registry.Code
	}{
		{"plain error retries", errors.New("disk full"), registry.UnknownError},
		{"status error selects code", delivery.NewStatusError(reg, registry.UnknownErrorNoRetry), registry.UnknownErrorNoRetry},
		{"wrapped status error", errors.Join(errors.New("ctx"), delivery.NewStatusError(reg, registry.UnknownMessageType)), registry.UnknownMessageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dedup.New(10)
			h := NewHandler(reg, store)
			h.Register(typePing, &countingProcessor{err: tt.err})

			f := wire.NewFrame(typePing, 1, []byte(tt.name))
			assert.Equal(t, tt.want, h.Handle(context.Background(), f))
			assert.Equal(t, 0, store.Len(), "failed frames are not recorded")
		})
	}
}

func TestHandleProcessorPanic(t *testing.T) {
	h, store, _ := newTestHandler(t)
	h.Register(2, ProcessorFunc(func(ctx context.Context, scopeID uint32, payload []byte) error {
		panic("bad payload")
	}))

	assert.Equal(t, registry.UnknownError, h.Handle(context.Background(), wire.NewFrame(2, 1, []byte("x"))))
	assert.Equal(t, 0, store.Len())
}

func TestHandleBytes(t *testing.T) {
	h, _, _ := newTestHandler(t)
	codec := wire.DefaultCodec()
	good, err := codec.Encode(wire.NewFrame(typePing, 1, []byte("payload")))
	require.NoError(t, err)

	code, err := h.HandleBytes(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, registry.OK, code)

	_, err = h.HandleBytes(context.Background(), good[:10])
	assert.ErrorIs(t, err, wire.ErrIncomplete)

	bad := append([]byte(nil), good...)
	bad[wire.HeaderLen] ^= 0xFF
	code, err = h.HandleBytes(context.Background(), bad)
	require.NoError(t, err)
	assert.Equal(t, registry.CorruptFrame, code)

	code, err = h.HandleBytes(context.Background(), append(append([]byte(nil), good...), 0x00))
	require.NoError(t, err)
	assert.Equal(t, registry.CorruptFrame, code)
}

func TestLoopbackEndToEnd(t *testing.T) {
	h, store, p := newTestHandler(t)
	sender := delivery.NewSender(NewLoopback(h), delivery.DefaultPolicy())

	msg := delivery.NewMessage(typePing, 5, []byte("once"))
	out := sender.Deliver(context.Background(), msg)
	assert.True(t, out.Delivered())

	out = sender.Deliver(context.Background(), delivery.NewMessage(typePing, 5, []byte("once")))
	assert.True(t, out.Delivered(), "ALREADY_WRITTEN counts as delivered")
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 1, store.Len())
}

func TestLoopbackRetriesUntilProcessed(t *testing.T) {
	store := dedup.New(10)
	h := NewHandler(registry.Default(), store)
	var calls atomic.Int32
	h.Register(typePing, ProcessorFunc(func(ctx context.Context, scopeID uint32, payload []byte) error {
		if calls.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}))

	sender := delivery.NewSender(NewLoopback(h), delivery.Policy{
		Retry:       delivery.RetryUnlessTerminal,
		Backoff:     delivery.Backoff{Unit: time.Millisecond},
		MaxAttempts: 5,
	})
	out := sender.Deliver(context.Background(), delivery.NewMessage(typePing, 1, []byte("eventually")))
	assert.True(t, out.Delivered())
	assert.Equal(t, 3, out.Attempts)
}

func TestLoopbackTerminalStatusRejects(t *testing.T) {
	h, _, _ := newTestHandler(t)
	sender := delivery.NewSender(NewLoopback(h), delivery.Policy{
		Retry:       delivery.RetryUnlessTerminal,
		Backoff:     delivery.Backoff{Unit: time.Millisecond},
		MaxAttempts: 5,
	})

	out := sender.Deliver(context.Background(), delivery.NewMessage(77, 1, []byte("nobody home")))
	assert.Equal(t, delivery.ResultRejected, out.Result)
	assert.Equal(t, 1, out.Attempts)

	var se *delivery.StatusError
	require.ErrorAs(t, out.Err, &se)
	assert.Equal(t, registry.UnknownMessageType, se.Code)
	assert.False(t, se.Retryable)
}
