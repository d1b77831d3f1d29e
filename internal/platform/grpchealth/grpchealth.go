// Package grpchealth runs a gRPC listener that only serves the standard
// health service and reflection, for orchestrators that probe over gRPC.
package grpchealth

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	ready  func() error
	log    *zap.Logger
	name   string
}

// New builds the server. ready may be nil; it is polled by Watch to flip
// the serving status.
func New(service string, ready func() error, log *zap.Logger) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return &Server{grpc: gs, health: hs, ready: ready, log: log, name: service}
}

// Check evaluates ready once and publishes the result for "" and the service name.
func (s *Server) Check() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ready != nil {
		if err := s.ready(); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.name, status)
	return status
}

// Serve listens on addr until ctx is cancelled, then stops gracefully with a
// 10s hard stop.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.Check()
	go s.watch(ctx, 5*time.Second)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			s.grpc.Stop()
		}
	}()
	s.log.Info("grpc health server starting", zap.String("addr", addr))
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *Server) watch(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check()
		}
	}
}
