package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"staybook-backend/internal/logger"
)

// Unary logs every unary RPC and turns handler panics into codes.Internal
func Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("RPC panicked", "method", info.FullMethod, "panic", p)
				err = status.Error(codes.Internal, "internal error")
			}
			logger.Debug("RPC handled", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		}()
		return handler(ctx, req)
	}
}

// Stream logs streaming RPCs such as health Watch
func Stream() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Stream panicked", "method", info.FullMethod, "panic", p)
				err = status.Error(codes.Internal, "internal error")
			}
			logger.Debug("Stream closed", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		}()
		return handler(srv, ss)
	}
}
