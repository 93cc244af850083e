// Package rpc carries frames between a delivery.Sender and a remote
// receiver.Handler over gRPC.
//
// The service is a single unary method, courier.v1.Delivery/Deliver. Its
// request is a google.protobuf.BytesValue holding one encoded frame and its
// response is a google.protobuf.Int32Value holding the registry status code.
// The descriptor is hand-written; no generated stubs are needed.
//
// Status codes that are not OK or ALREADY_WRITTEN reach the sender as a
// *delivery.StatusError so the retry policy can tell terminal codes from
// retryable ones. Transport failures are plain errors and are retried.
package rpc
