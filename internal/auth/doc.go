// Package auth authenticates senders on the courier gRPC service.
//
// When a shared secret is configured, every Deliver call must carry an
// HS256-signed JWT in the "authorization: Bearer <token>" metadata. The
// token's "sub" claim names the sender; handlers read it back with
// SenderFromContext. Tokens are minted with `courier token`.
//
// Without a secret the service accepts anonymous calls.
package auth
