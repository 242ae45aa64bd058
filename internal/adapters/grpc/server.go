package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer publishes the standard gRPC health service and keeps its
// status in line with a readiness probe.
type HealthServer struct {
	srv         *health.Server
	serviceName string
	ready       func(ctx context.Context) error
	interval    time.Duration
	logger      *slog.Logger
}

func NewHealthServer(serviceName string, ready func(ctx context.Context) error, interval time.Duration, logger *slog.Logger) *HealthServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &HealthServer{
		srv:         health.NewServer(),
		serviceName: serviceName,
		ready:       ready,
		interval:    interval,
		logger:      logger,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthServer) Register(server grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(server, h.srv)
}

func (h *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	return h.srv.Check(ctx, req)
}

// Run re-evaluates readiness every interval until ctx ends.
func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		h.refresh(ctx)
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *HealthServer) refresh(ctx context.Context) {
	if h.ready == nil {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.ready(checkCtx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed",
			"module", "grpc.health",
			"layer", "adapter",
			"operation", "refresh",
			"outcome", "failure",
			"error", err,
		)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	if h.serviceName != "" {
		h.srv.SetServingStatus(h.serviceName, status)
	}
}
