package grpc

import (
	"context"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	googleGrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"go.uber.org/zap"
)

const ServiceName = "inventory"

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker reports the inventory service as serving while every
// dependency answers a ping.
type HealthChecker struct {
	server   *health.Server
	deps     map[string]Pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthChecker(deps map[string]Pinger, interval time.Duration, logger *zap.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &HealthChecker{
		server:   health.NewServer(),
		deps:     deps,
		interval: interval,
		logger:   logger,
	}
}

// NewServer returns a traced and metered grpc server with the health
// service registered.
func (h *HealthChecker) NewServer() *googleGrpc.Server {
	s := googleGrpc.NewServer(
		googleGrpc.StatsHandler(otelgrpc.NewServerHandler()),
		googleGrpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		googleGrpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)
	healthpb.RegisterHealthServer(s, h.server)

	grpc_prometheus.Register(s)

	return s
}

// Check pings every dependency once and publishes the result.
func (h *HealthChecker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING

	for name, dep := range h.deps {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := dep.Ping(pingCtx)
		cancel()

		if err != nil {
			mylogger.Warn(ctx, h.logger, "Dependency not healthy", zap.String("dependency", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	h.server.SetServingStatus(ServiceName, status)
	h.server.SetServingStatus("", status)

	return status
}

// Run checks on every tick until ctx is done, then marks everything as
// not serving.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthChecker) Server() healthpb.HealthServer {
	return h.server
}
