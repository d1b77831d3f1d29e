package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew_DefaultsRouterAndTimeouts(t *testing.T) {
	s := New(Options{Addr: ":0", ServiceName: "web", Logger: zap.NewNop()})
	if s.HTTP.Handler == nil {
		t.Fatal("expected a default router")
	}
	if s.HTTP.ReadHeaderTimeout != 5*time.Second || s.HTTP.WriteTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: %+v", s.HTTP)
	}
	if s.HTTP.ErrorLog == nil {
		t.Fatal("expected error log bound to the logger")
	}
}

func TestStart_ShutdownReturnsServerClosed(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0", ServiceName: "worker"})
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(zap.NewNop()) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := s.Shutdown(ctx)
		cancel()
		if err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				t.Fatalf("Start = %v, want ErrServerClosed", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not stop")
		}
	}
}
