// Package grpc exposes the operational gRPC surface: the standard health
// service and reflection. Booking traffic goes through the HTTP API.
package grpc

import (
	"context"
	"database/sql"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"staybook-backend/internal/api/grpc/interceptor"
	"staybook-backend/internal/logger"
)

// ServiceName is the health-checked service reported next to the overall "" status
const ServiceName = "staybook.BookingService"

type Server struct {
	*grpc.Server
	health *health.Server
}

func NewServer() *Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Unary()),
		grpc.ChainStreamInterceptor(interceptor.Stream()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{Server: s, health: hs}
}

// SetServing flips the booking service status
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

// WatchDatabase pings db on every tick and reports the result as the
// booking service status until ctx is done.
func (s *Server) WatchDatabase(ctx context.Context, db *sql.DB, every time.Duration) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := db.PingContext(pingCtx)
		if err != nil {
			logger.Warn("Database health check failed", "error", err)
		}
		s.SetServing(err == nil)
	}

	check()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// GracefulStop marks everything NOT_SERVING before draining connections
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
}
