package grpchealth

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheck_FollowsReadyFunc(t *testing.T) {
	var failing error
	s := New("web", func() error { return failing }, zap.NewNop())

	if got := s.Check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", got)
	}
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "web"})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health response: %v %v", resp, err)
	}

	failing = errors.New("db down")
	if got := s.Check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}
}

func TestCheck_NilReadyIsServing(t *testing.T) {
	s := New("worker", nil, zap.NewNop())
	if got := s.Check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", got)
	}
}
