// ABOUTME: gRPC interceptor and client credentials for bearer-token sender auth
// ABOUTME: Verified sender names travel in the request context to handlers

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type senderKey struct{}

// WithSender returns a copy of ctx carrying sender.
func WithSender(ctx context.Context, sender string) context.Context {
	return context.WithValue(ctx, senderKey{}, sender)
}

// SenderFromContext returns the authenticated sender, if any.
func SenderFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(senderKey{}).(string)
	return s, ok
}

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string) {
	attrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	logger.Warn("auth failure", attrs...)
}

// UnaryInterceptor rejects calls without a valid bearer token and stores the
// sender name in the handler's context.
func UnaryInterceptor(v *Verifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		sender, err := authenticate(ctx, v)
		if err != nil {
			logAuthFailure(logger, ctx, err.Error())
			return nil, err
		}
		return handler(WithSender(ctx, sender), req)
	}
}

func authenticate(ctx context.Context, v *Verifier) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing authorization header")
	}

	authHeader := authHeaders[0]
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", status.Error(codes.Unauthenticated, "invalid authorization header format")
	}

	sender, err := v.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return "", status.Errorf(codes.Unauthenticated, "%v", err)
	}
	return sender, nil
}

// TokenCredentials attaches a bearer token to every call.
type TokenCredentials struct {
	Token string
	// Secure requires a TLS transport before the token is sent.
	Secure bool
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c TokenCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.Token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c TokenCredentials) RequireTransportSecurity() bool {
	return c.Secure
}
