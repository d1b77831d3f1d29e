package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultDrain bounds how long WithSignals waits for start to return after a signal.
const DefaultDrain = 15 * time.Second

type Runner struct {
	Logger *zap.Logger
	Drain  time.Duration

	notify func(ctx context.Context) (context.Context, context.CancelFunc)
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, Drain: DefaultDrain}
}

func (r *Runner) signalContext() (context.Context, context.CancelFunc) {
	if r.notify != nil {
		return r.notify(context.Background())
	}
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// WithSignals runs start with a context cancelled on SIGINT/SIGTERM and
// returns a process exit code. After a signal, start gets Drain to return.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := r.signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		drain := r.Drain
		if drain <= 0 {
			drain = DefaultDrain
		}
		select {
		case err := <-errCh:
			return r.code(err)
		case <-time.After(drain):
			r.Logger.Warn("shutdown drain timed out", zap.Duration("drain", drain))
			return 1
		}
	case err := <-errCh:
		return r.code(err)
	}
}

func (r *Runner) code(err error) int {
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

// Graceful calls shutdown with a fresh 10s deadline, detached from ctx.
func (r *Runner) Graceful(ctx context.Context, shutdown func(context.Context) error) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := shutdown(c); err != nil {
		r.Logger.Warn("graceful shutdown", zap.Error(err))
	}
}

func Exit(code int) {
	os.Exit(code)
}
