// ABOUTME: Binary frame codec for one delivery attempt on the wire.
// ABOUTME: Distinguishes incomplete input (wait for bytes) from corrupt input (close connection).

package wire

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// Version is the only protocol version this codec speaks.
	Version uint8 = 1

	// TypeEndOfStream marks the control frame that closes a stream. It carries
	// no payload and is never dispatched to a handler.
	TypeEndOfStream uint8 = 0xFF

	// HeaderLen is the fixed header size preceding the payload.
	HeaderLen = 18
	// HashLen is the size of the trailing content hash.
	HashLen = md5.Size

	// DefaultMaxPayload bounds decode memory use.
	DefaultMaxPayload = 8 * 1024 * 1024
)

var (
	// ErrIncomplete means more bytes are needed before a frame can be decoded.
	ErrIncomplete = errors.New("wire: incomplete frame")
	// ErrCorrupt means the bytes can never become a valid frame.
	ErrCorrupt = errors.New("wire: corrupt frame")
)

// Hash is the 16-byte content digest of a payload.
type Hash [HashLen]byte

// Sum returns the content hash of payload.
func Sum(payload []byte) Hash {
	return Hash(md5.Sum(payload))
}

// String returns the lowercase hex form used in logs and snapshots.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses the lowercase or uppercase hex form of a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing hash %q: %w", s, err)
	}
	if len(b) != HashLen {
		return h, fmt.Errorf("parsing hash %q: want %d bytes, got %d", s, HashLen, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Frame is one self-describing unit of wire data.
type Frame struct {
	Version  uint8
	Type     uint8
	Reserved [8]byte
	ScopeID  uint32
	Payload  []byte
	Hash     Hash
}

// NewFrame builds a current-version frame and computes its content hash.
func NewFrame(msgType uint8, scopeID uint32, payload []byte) Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Frame{
		Version: Version,
		Type:    msgType,
		ScopeID: scopeID,
		Payload: p,
		Hash:    Sum(p),
	}
}

// EndOfStream builds the control frame that closes a stream for scopeID.
func EndOfStream(scopeID uint32) Frame {
	return NewFrame(TypeEndOfStream, scopeID, nil)
}

// IsEndOfStream reports whether f is the end-of-stream control frame.
func (f Frame) IsEndOfStream() bool {
	return f.Type == TypeEndOfStream
}

// Equal reports whether two frames are identical field by field.
func (f Frame) Equal(o Frame) bool {
	return f.Version == o.Version &&
		f.Type == o.Type &&
		f.Reserved == o.Reserved &&
		f.ScopeID == o.ScopeID &&
		f.Hash == o.Hash &&
		bytes.Equal(f.Payload, o.Payload)
}

// Codec encodes and decodes frames under a payload size limit.
type Codec struct {
	MaxPayload int
}

// DefaultCodec returns a codec using DefaultMaxPayload.
func DefaultCodec() Codec {
	return Codec{MaxPayload: DefaultMaxPayload}
}

// Encode serializes f. The frame's Hash is written as-is so that a decode of
// the output reproduces f exactly.
func (c Codec) Encode(f Frame) ([]byte, error) {
	if err := c.check(f); err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderLen+len(f.Payload)+HashLen)
	putHeader(buf, f)
	copy(buf[HeaderLen:], f.Payload)
	copy(buf[HeaderLen+len(f.Payload):], f.Hash[:])
	return buf, nil
}

// Decode parses one frame from the front of b and returns it with the number
// of bytes consumed. Short input yields ErrIncomplete; anything that can never
// parse yields an error wrapping ErrCorrupt, even before a full header arrives.
func (c Codec) Decode(b []byte) (Frame, int, error) {
	if len(b) > 0 && b[0] != Version {
		return Frame{}, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, b[0])
	}
	if len(b) < HeaderLen {
		return Frame{}, 0, ErrIncomplete
	}
	f, n, err := c.parseHeader(b[:HeaderLen])
	if err != nil {
		return Frame{}, 0, err
	}
	total := HeaderLen + n + HashLen
	if len(b) < total {
		return Frame{}, 0, ErrIncomplete
	}
	f.Payload = make([]byte, n)
	copy(f.Payload, b[HeaderLen:HeaderLen+n])
	copy(f.Hash[:], b[HeaderLen+n:total])
	if err := verify(f); err != nil {
		return Frame{}, 0, err
	}
	return f, total, nil
}

// ReadFrame reads exactly one frame from r. A clean end of input before the
// first byte returns io.EOF; an end part-way through returns ErrIncomplete.
func (c Codec) ReadFrame(r io.Reader) (Frame, error) {
	var head [HeaderLen]byte
	if n, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if n > 0 && head[0] != Version {
			return Frame{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, head[0])
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrIncomplete
		}
		return Frame{}, err
	}
	f, n, err := c.parseHeader(head[:])
	if err != nil {
		return Frame{}, err
	}
	rest := make([]byte, n+HashLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrIncomplete
		}
		return Frame{}, err
	}
	f.Payload = rest[:n:n]
	copy(f.Hash[:], rest[n:])
	if err := verify(f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// WriteFrame writes the encoded form of f to w.
func (c Codec) WriteFrame(w io.Writer, f Frame) error {
	b, err := c.Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (c Codec) check(f Frame) error {
	if f.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, f.Version)
	}
	if c.MaxPayload > 0 && len(f.Payload) > c.MaxPayload {
		return fmt.Errorf("%w: payload %d bytes exceeds limit %d", ErrCorrupt, len(f.Payload), c.MaxPayload)
	}
	if f.IsEndOfStream() && len(f.Payload) > 0 {
		return fmt.Errorf("%w: end-of-stream frame carries payload", ErrCorrupt)
	}
	return nil
}

func (c Codec) parseHeader(b []byte) (Frame, int, error) {
	f := Frame{
		Version: b[0],
		Type:    b[1],
		ScopeID: binary.BigEndian.Uint32(b[10:14]),
	}
	copy(f.Reserved[:], b[2:10])
	n := binary.BigEndian.Uint32(b[14:18])
	if f.Version != Version {
		return Frame{}, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, f.Version)
	}
	if c.MaxPayload > 0 && uint64(n) > uint64(c.MaxPayload) {
		return Frame{}, 0, fmt.Errorf("%w: payload %d bytes exceeds limit %d", ErrCorrupt, n, c.MaxPayload)
	}
	if f.IsEndOfStream() && n != 0 {
		return Frame{}, 0, fmt.Errorf("%w: end-of-stream frame carries payload", ErrCorrupt)
	}
	return f, int(n), nil
}

func putHeader(buf []byte, f Frame) {
	buf[0] = f.Version
	buf[1] = f.Type
	copy(buf[2:10], f.Reserved[:])
	binary.BigEndian.PutUint32(buf[10:14], f.ScopeID)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))
}

func verify(f Frame) error {
	if Sum(f.Payload) != f.Hash {
		return fmt.Errorf("%w: content hash mismatch", ErrCorrupt)
	}
	return nil
}
