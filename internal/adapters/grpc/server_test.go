package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServerFollowsReadiness(t *testing.T) {
	var readyErr error
	h := NewHealthServer("m48", func(context.Context) error { return readyErr }, time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	resp, err := h.Check(ctx, &healthpb.HealthCheckRequest{Service: "m48"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first refresh, got %s", resp.GetStatus())
	}

	h.refresh(ctx)
	resp, _ = h.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}

	readyErr = errors.New("db down")
	h.refresh(ctx)
	resp, _ = h.Check(ctx, &healthpb.HealthCheckRequest{Service: "m48"})
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after failed probe, got %s", resp.GetStatus())
	}
}
