package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves the gRPC health protocol for a fixed set of service
// names. Every name, plus the empty overall name, reports SERVING until
// Serve returns.
type HealthServer struct {
	server *gogrpc.Server
	health *health.Server
}

// NewHealthServer builds a server reporting services as SERVING. Spans are
// recorded for every call when a TracerProvider is registered.
func NewHealthServer(services ...string) *HealthServer {
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return &HealthServer{server: server, health: healthServer}
}

// Serve accepts connections on listener until ctx ends, then flips every
// service to NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("listener is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.health.Shutdown()
		s.server.GracefulStop()
	}()

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	<-stopped
	return nil
}
