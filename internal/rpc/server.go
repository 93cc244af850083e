// ABOUTME: gRPC server side of the delivery transport, backed by a receiver.Handler.
// ABOUTME: Maps undecodable request bodies to InvalidArgument and everything else to status codes.

package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/courier/internal/auth"
	"github.com/2389/courier/internal/receiver"
	"github.com/2389/courier/internal/wire"
)

// Server adapts a receiver.Handler to DeliveryServer.
type Server struct {
	handler *receiver.Handler
	logger  *slog.Logger
}

// NewServer creates a Server. A nil logger uses slog.Default().
func NewServer(h *receiver.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: h,
		logger:  logger.With("component", "rpc"),
	}
}

// Deliver decodes and handles one frame.
func (s *Server) Deliver(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.Int32Value, error) {
	code, err := s.handler.HandleBytes(ctx, req.GetValue())
	if err != nil {
		if errors.Is(err, wire.ErrIncomplete) {
			return nil, status.Errorf(codes.InvalidArgument, "truncated frame: %d bytes", len(req.GetValue()))
		}
		return nil, status.Errorf(codes.Internal, "handling frame: %v", err)
	}
	if sender, ok := auth.SenderFromContext(ctx); ok {
		s.logger.Debug("frame handled", "sender", sender, "status", s.handler.Registry().Name(code))
	}
	return wrapperspb.Int32(int32(code)), nil
}

// NewGRPCServer builds a *grpc.Server with the keepalive settings and
// logging interceptor used by courier.
func NewGRPCServer(logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	base := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(LoggingInterceptor(logger.With("component", "grpc"))),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// LoggingInterceptor logs each unary call at debug level and failures at warn.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc failed",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"duration", time.Since(start),
				"error", err,
			)
			return resp, err
		}
		logger.Debug("rpc handled",
			"method", info.FullMethod,
			"duration", time.Since(start),
		)
		return resp, nil
	}
}
