package run

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func manual(r *Runner) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	r.notify = func(context.Context) (context.Context, context.CancelFunc) { return ctx, cancel }
	return cancel
}

func TestWithSignals_StartReturnsNil(t *testing.T) {
	r := New(zap.NewNop())
	manual(r)
	if code := r.WithSignals(func(context.Context) error { return nil }); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestWithSignals_ServerClosedIsClean(t *testing.T) {
	r := New(zap.NewNop())
	manual(r)
	if code := r.WithSignals(func(context.Context) error { return http.ErrServerClosed }); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestWithSignals_ErrorIsNonZero(t *testing.T) {
	r := New(zap.NewNop())
	manual(r)
	if code := r.WithSignals(func(context.Context) error { return errors.New("boom") }); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
}

func TestWithSignals_SignalWaitsForStart(t *testing.T) {
	r := New(zap.NewNop())
	cancel := manual(r)
	returned := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	code := r.WithSignals(func(ctx context.Context) error {
		<-ctx.Done()
		close(returned)
		return ctx.Err()
	})
	if code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	select {
	case <-returned:
	default:
		t.Fatal("expected start to have returned before WithSignals")
	}
}

func TestWithSignals_DrainTimeout(t *testing.T) {
	r := New(zap.NewNop())
	r.Drain = 20 * time.Millisecond
	cancel := manual(r)
	cancel()
	block := make(chan struct{})
	defer close(block)
	code := r.WithSignals(func(context.Context) error {
		<-block
		return nil
	})
	if code != 1 {
		t.Fatalf("expected 1 on drain timeout, got %d", code)
	}
}
