package server

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/lupppig/notifyflow/internal/security"
)

const (
	APIKeyHeader      = "x-api-key"
	healthCheckMethod = "/grpc.health.v1.Health/Check"
)

// AuthInterceptor validates the admin API key on incoming gRPC requests. With
// no key configured every request is let through.
type AuthInterceptor struct {
	verifier *security.Verifier
}

func NewAuthInterceptor(apiKey string) *AuthInterceptor {
	return &AuthInterceptor{verifier: security.NewVerifier(apiKey)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// Probes hit Check without credentials.
		if info.FullMethod == healthCheckMethod {
			return handler(ctx, req)
		}
		if err := a.authorize(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := a.authorize(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *AuthInterceptor) authorize(ctx context.Context) error {
	if !a.verifier.Enabled() {
		return nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	var key string
	if keys := md.Get(APIKeyHeader); len(keys) > 0 {
		key = keys[0]
	}
	if err := a.verifier.Verify(key); err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	return nil
}

// HTTP guards an admin HTTP handler with the same key, read from the
// X-API-Key header.
func (a *AuthInterceptor) HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.verifier.Verify(r.Header.Get(APIKeyHeader)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
