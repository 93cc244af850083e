// ABOUTME: Message and outcome types shared by the sender and the async stream.
// ABOUTME: Defines the Transport capability and the typed status error it may return.

package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/courier/internal/registry"
)

// ErrCancelled may be returned by a Transport to signal interruption. It is
// never retried.
var ErrCancelled = errors.New("delivery cancelled")

// Message is one opaque payload addressed by message type and client scope.
// It is immutable once created.
type Message struct {
	ID      string
	Type    uint8
	ScopeID uint32
	payload []byte
}

// NewMessage copies payload into a new Message with a fresh ID.
func NewMessage(msgType uint8, scopeID uint32, payload []byte) Message {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Message{
		ID:      uuid.New().String(),
		Type:    msgType,
		ScopeID: scopeID,
		payload: p,
	}
}

// Payload returns a copy of the message body.
func (m Message) Payload() []byte {
	p := make([]byte, len(m.payload))
	copy(p, m.payload)
	return p
}

// Len returns the payload size in bytes.
func (m Message) Len() int {
	return len(m.payload)
}

// Transport is the network capability the Sender drives. Send returns nil when
// the receiver has the message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// StatusError carries a non-success status code returned by a receiver.
type StatusError struct {
	Code      registry.Code
	Name      string
	Retryable bool
}

// NewStatusError resolves code against reg.
func NewStatusError(reg *registry.Registry, code registry.Code) *StatusError {
	return &StatusError{
		Code:      code,
		Name:      reg.Name(code),
		Retryable: reg.Retryable(code),
	}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("receiver returned %s (%d)", e.Name, e.Code)
}

// Result is the terminal state of one delivery sequence.
type Result int

const (
	// ResultDelivered means the receiver acknowledged the message.
	ResultDelivered Result = iota
	// ResultExhausted means every permitted attempt failed.
	ResultExhausted
	// ResultRejected means the receiver returned a terminal status.
	ResultRejected
	// ResultCancelled means the sequence was interrupted.
	ResultCancelled
	// ResultFailed means the sequence aborted on an unexpected panic.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultDelivered:
		return "delivered"
	case ResultExhausted:
		return "exhausted"
	case ResultRejected:
		return "rejected"
	case ResultCancelled:
		return "cancelled"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Outcome describes how a delivery sequence ended.
type Outcome struct {
	Message  Message
	Result   Result
	Attempts int
	Err      error
}

// Delivered reports whether the receiver has the message.
func (o Outcome) Delivered() bool {
	return o.Result == ResultDelivered
}
