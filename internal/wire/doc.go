// Package wire implements the binary frame used for every delivery attempt.
//
// # Frame Layout
//
// All integers are big-endian:
//
//	offset  size  field
//	0       1     protocol version (1)
//	1       1     message type (0xFF = end-of-stream control frame)
//	2       8     reserved, round-trips unchanged
//	10      4     client scope id
//	14      4     payload length
//	18      n     payload
//	18+n    16    MD5 content hash of the payload
//
// The content hash doubles as the receiver's dedup key.
//
// # Errors
//
// Decoders report two distinct failure classes:
//
//   - ErrIncomplete: the input ended early; wait for more bytes.
//   - ErrCorrupt: the input can never parse; close the connection.
package wire
