package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/auth"
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
	"github.com/example/anitrack/services/web/internal/autolink"
	"github.com/example/anitrack/services/web/internal/completions"
	webconfig "github.com/example/anitrack/services/web/internal/config"
	"github.com/example/anitrack/services/web/internal/feed"
	"github.com/example/anitrack/services/web/internal/handlers"
	webhttp "github.com/example/anitrack/services/web/internal/http"
	"github.com/example/anitrack/services/web/internal/pages"
	"github.com/example/anitrack/services/web/internal/statscache"
	"github.com/example/anitrack/services/web/internal/store"
	"github.com/example/anitrack/services/web/internal/tracking"
)

const trendingWindow = 7 * 24 * time.Hour

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

	webCfg, err := webconfig.LoadWeb(cfg)
	if err != nil {
		log.Error("load web config", zap.Error(err))
		run.Exit(1)
	}

	ctx := context.Background()
	stores, pool := initStores(ctx, cfg, webCfg, log)
	if pool != nil {
		defer pool.Close()
	}

	m := metrics.New(cfg.ServiceName)
	cache, backend, closeCache := statscache.NewCache(ctx, webCfg.RedisURL, webCfg.StatsCacheSize, webCfg.StatsCacheTTL, log)
	defer closeCache()
	cache = statscache.WithMetrics(cache, backend, m)

	nc := initNATS(webCfg, cfg.ServiceName, log)
	if nc != nil {
		defer nc.Close()
		if _, err := statscache.Subscribe(nc, cache, log); err != nil {
			log.Warn("stats invalidation subscribe failed", zap.Error(err))
		}
	}
	pub, err := events.New(nc, log)
	if err != nil {
		log.Warn("jetstream unavailable, events disabled", zap.Error(err))
		pub, _ = events.New(nil, log)
	}

	feedSvc := feed.NewService(stores.Posts, pub, log)
	completionsSvc := completions.NewService(stores.Completions, stores.Reviews, cache, log)
	reader := &trending.Reader{Source: stores.Trending, Window: trendingWindow, Log: log}
	if webCfg.RedisURL != "" {
		if rc, err := redisconn.Open(ctx, webCfg.RedisURL); err == nil {
			defer func() { _ = rc.Close() }()
			reader.Snapshots = &trending.Snapshots{Client: rc}
		} else {
			log.Warn("redis unavailable, trending served live", zap.Error(err))
		}
	}

	var sources []autolink.Source
	if webCfg.TMDB.APIKey != "" {
		sources = append(sources, autolink.NewTMDB(webCfg.TMDB.BaseURL, webCfg.TMDB.APIKey, webCfg.ExternalRPS))
	}
	if webCfg.TVDB.APIKey != "" {
		sources = append(sources, autolink.NewTVDB(webCfg.TVDB.BaseURL, webCfg.TVDB.APIKey, webCfg.ExternalRPS))
	}
	if len(sources) == 0 {
		log.Warn("no TMDB/TVDB api keys, auto-link will find nothing")
	}

	var ready func() error
	if pool != nil {
		ready = db.ReadyFunc(pool)
	}
	verifier := auth.JWTVerifier{Secret: webCfg.JWTSecret}
	limiter := webhttp.NewRateLimiter(webCfg.RateLimitRPS, webCfg.RateLimitBurst)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:      ready,
		AllowedOrigins: webCfg.AllowedOrigins,
		Logger:         log,
		Middlewares: []func(http.Handler) http.Handler{
			m.Middleware,
			auth.OptionalUser(verifier),
			limiter.Middleware,
		},
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	handlers.Mount(r, handlers.Deps{
		Stores:      stores,
		Verifier:    verifier,
		Issuer:      auth.Issuer{Secret: webCfg.JWTSecret, TTL: webCfg.TokenTTL},
		AdminSecret: webCfg.AdminSecret,
		Feed:        feedSvc,
		Tracking:    tracking.NewService(stores, cache, pub, log),
		Pages:       pages.NewService(stores, feedSvc, completionsSvc, pub, log),
		Completions: completionsSvc,
		Trending:    reader,
		Linker:      &autolink.Linker{Media: stores.Media, Sources: sources, Metrics: m, Log: log},
		Log:         log,
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})
	health := grpchealth.New(cfg.ServiceName, ready, log)

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			if err := health.Serve(ctx, cfg.GRPC.Addr); err != nil {
				log.Error("grpc health", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			runner.Graceful(ctx, srv.Shutdown)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStores selects the store backend. Without DATABASE_URL the service runs
// on in-memory stores; production requires a working Postgres.
func initStores(ctx context.Context, cfg config.AppConfig, webCfg webconfig.WebConfig, log *zap.Logger) (store.Stores, *pgxpool.Pool) {
	if webCfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		return store.NewMemoryStores(), nil
	}
	pool, err := db.Open(ctx, webCfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory stores", zap.Error(err))
		return store.NewMemoryStores(), nil
	}
	log.Info("stores: postgres")
	return store.NewPostgresStores(pool), pool
}

// initNATS connects and declares the event streams. NATS is optional: without
// it events are dropped and cache invalidation stays local.
func initNATS(webCfg webconfig.WebConfig, name string, log *zap.Logger) *nats.Conn {
	if webCfg.NATSURL == "" {
		log.Warn("NATS_URL not set, events disabled")
		return nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: webCfg.NATSURL, Name: name, Logger: log})
	if err != nil {
		log.Warn("nats connect failed, events disabled", zap.Error(err))
		return nil
	}
	js, err := nc.JetStream()
	if err == nil {
		err = events.EnsureStreams(js, log)
	}
	if err != nil {
		log.Warn("ensure streams failed", zap.Error(err))
	}
	return nc
}
