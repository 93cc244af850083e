// Package receiver implements the receiving end of a delivery.
//
// A Handler checks each frame against the dedup store before dispatching it
// to the Processor registered for its message type:
//
//	end-of-stream frame    → OK, not dispatched
//	no processor for type  → UNKNOWN_MESSAGE_TYPE
//	(type, hash) retained  → ALREADY_WRITTEN
//	processor error        → its StatusError code, else UNKNOWN_ERROR
//	success                → hash recorded, OK
//
// Loopback wraps a Handler as a delivery.Transport for in-process use and
// tests.
package receiver
