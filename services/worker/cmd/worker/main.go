package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/anitrack/internal/platform/config"
	"github.com/example/anitrack/internal/platform/db"
	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/internal/platform/grpchealth"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/internal/platform/logging"
	"github.com/example/anitrack/internal/platform/metrics"
	"github.com/example/anitrack/internal/platform/natsconn"
	"github.com/example/anitrack/internal/platform/redisconn"
	"github.com/example/anitrack/internal/platform/run"
	"github.com/example/anitrack/internal/trending"
	workerconfig "github.com/example/anitrack/services/worker/internal/config"
	"github.com/example/anitrack/services/worker/internal/evictor"
	"github.com/example/anitrack/services/worker/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.NewWithFields(cfg.LogLevel, zap.String("service", cfg.ServiceName))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	wcfg, err := workerconfig.LoadWorker()
	if err != nil {
		log.Error("load worker config", zap.Error(err))
		run.Exit(1)
	}
	if wcfg.RedisURL == "" {
		log.Error("REDIS_URL is required: both jobs write to redis")
		run.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, wcfg.DatabaseURL)
	if err != nil {
		log.Error("open database", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	rdb, err := redisconn.Open(ctx, wcfg.RedisURL)
	if err != nil {
		log.Error("open redis", zap.Error(err))
		run.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	m := metrics.New(cfg.ServiceName)

	task, err := tasks.NewTrendingTask(&trending.Refresher{
		Source:    trending.NewPostgresSource(pool),
		Snapshots: &trending.Snapshots{Client: rdb, TTL: wcfg.TrendingTTL},
		Window:    wcfg.TrendingWindow,
		Limit:     wcfg.TrendingLimit,
		Log:       log,
	}, wcfg.TrendingCron, log)
	if err != nil {
		log.Error("trending task", zap.Error(err))
		run.Exit(1)
	}

	var consumer *evictor.Consumer
	if nc := connectNATS(wcfg, cfg.ServiceName, log); nc != nil {
		defer nc.Close()
		js, err := nc.JetStream()
		if err == nil {
			err = events.EnsureStreams(js, log)
		}
		if err == nil {
			consumer, err = evictor.New(js, &evictor.Evictor{Redis: rdb, Metrics: m, Log: log},
				wcfg.Durable, wcfg.BatchSize, wcfg.BatchInterval, log)
		}
		if err != nil {
			log.Error("stats evictor unavailable", zap.Error(err))
			run.Exit(1)
		}
	}

	ready := db.ReadyFunc(pool)
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: ready, Logger: log})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})
	health := grpchealth.New(cfg.ServiceName, ready, log)

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			task.Start(gctx)
			return nil
		})
		if consumer != nil {
			g.Go(func() error { return consumer.Run(gctx) })
		}
		g.Go(func() error { return health.Serve(gctx, cfg.GRPC.Addr) })
		g.Go(func() error {
			<-gctx.Done()
			runner.Graceful(gctx, srv.Shutdown)
			return nil
		})
		g.Go(func() error { return srv.Start(log) })
		return g.Wait()
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// connectNATS returns nil when NATS is not configured; the worker then only
// refreshes trending snapshots.
func connectNATS(wcfg workerconfig.WorkerConfig, name string, log *zap.Logger) *nats.Conn {
	if wcfg.NATSURL == "" {
		log.Warn("NATS_URL not set, stats eviction disabled")
		return nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: wcfg.NATSURL, Name: name, Logger: log})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	return nc
}
