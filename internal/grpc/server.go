package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the health service for the order
// engine as a whole.
const ServiceName = "orders.Engine"

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// HealthServer exposes grpc.health.v1 and flips the serving status based on
// periodic dependency checks.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewHealthServer(checks map[string]Check, log *slog.Logger) *HealthServer {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: 10 * time.Second,
		timeout:  2 * time.Second,
		log:      log,
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Probe runs every check once and publishes the result. Each dependency is
// reported under its own name; the engine is serving only if all pass.
func (s *HealthServer) Probe(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := check(cctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.WarnContext(ctx, "dependency check failed", "dependency", name, "error", err)
		}
		s.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, overall)
	s.health.SetServingStatus("", overall)
	return healthy
}

func (s *HealthServer) Run(ctx context.Context) {
	s.Probe(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
