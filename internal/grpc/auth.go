package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const APIKeyHeader = "x-api-key"

// UnaryAuthInterceptor attaches the admin API key to every outgoing call.
func UnaryAuthInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(withKey(ctx, apiKey), method, req, reply, cc, opts...)
	}
}

// StreamAuthInterceptor is UnaryAuthInterceptor for streaming calls.
func StreamAuthInterceptor(apiKey string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(withKey(ctx, apiKey), desc, cc, method, opts...)
	}
}

func withKey(ctx context.Context, apiKey string) context.Context {
	if apiKey == "" {
		return ctx
	}
	md := metadata.Pairs(APIKeyHeader, apiKey)
	if exMD, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(exMD, md)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
