// ABOUTME: Hand-written gRPC service descriptor for courier.v1.Delivery.
// ABOUTME: Carries one encoded frame per unary call using protobuf wrapper types.

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "courier.v1.Delivery"

	deliverMethod = "/" + ServiceName + "/Deliver"
)

// DeliveryServer handles Deliver calls. The request holds one encoded frame;
// the response holds the registry status code.
type DeliveryServer interface {
	Deliver(ctx context.Context, frame *wrapperspb.BytesValue) (*wrapperspb.Int32Value, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeliveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "courier/v1/delivery.proto",
}

// Register installs srv on s.
func Register(s grpc.ServiceRegistrar, srv DeliveryServer) {
	s.RegisterService(&serviceDesc, srv)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeliveryServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeliveryServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}
