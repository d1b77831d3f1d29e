// Package tasks holds the worker's scheduled jobs.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/trending"
)

const defaultTimeout = 2 * time.Minute

// TrendingTask recomputes trending snapshots on a cron schedule.
type TrendingTask struct {
	refresher *trending.Refresher
	cron      *cron.Cron
	timeout   time.Duration
	log       *zap.Logger

	ctx context.Context
}

// NewTrendingTask parses the cron schedule and registers the job. Nothing
// runs until Start.
func NewTrendingTask(r *trending.Refresher, spec string, log *zap.Logger) (*TrendingTask, error) {
	cl := cronLogger{log: log}
	t := &TrendingTask{
		refresher: r,
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		timeout:   defaultTimeout,
		log:       log,
		ctx:       context.Background(),
	}
	if _, err := t.cron.AddFunc(spec, func() { _ = t.RunOnce(t.ctx) }); err != nil {
		return nil, fmt.Errorf("trending schedule %q: %w", spec, err)
	}
	return t, nil
}

// RunOnce refreshes every kind under the task timeout.
func (t *TrendingTask) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	err := t.refresher.Run(ctx)
	if err != nil {
		t.log.Error("trending refresh failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return err
	}
	t.log.Info("trending refresh done", zap.Duration("took", time.Since(start)))
	return nil
}

// Start refreshes once, then follows the schedule until ctx is cancelled and
// waits for a running job to finish.
func (t *TrendingTask) Start(ctx context.Context) {
	t.ctx = ctx
	_ = t.RunOnce(ctx)
	t.cron.Start()
	<-ctx.Done()
	<-t.cron.Stop().Done()
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, zap.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
