package config

import (
	"errors"
	"strings"
	"time"

	platformconfig "github.com/example/anitrack/internal/platform/config"
)

type WorkerConfig struct {
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	TrendingCron   string
	TrendingWindow time.Duration
	TrendingLimit  int
	TrendingTTL    time.Duration
	BatchSize      int
	BatchInterval  time.Duration
	Durable        string
}

func LoadWorker() (WorkerConfig, error) {
	v := platformconfig.NewViper()
	v.SetDefault("TRENDING_CRON", "*/15 * * * *")
	v.SetDefault("TRENDING_WINDOW", "168h")
	v.SetDefault("TRENDING_LIMIT", 10)
	v.SetDefault("TRENDING_TTL", "1h")
	v.SetDefault("WORKER_BATCH_SIZE", 50)
	v.SetDefault("WORKER_BATCH_INTERVAL_MS", 500)
	v.SetDefault("WORKER_DURABLE", "stats-evictor")

	cfg := WorkerConfig{
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisURL:       strings.TrimSpace(v.GetString("REDIS_URL")),
		NATSURL:        strings.TrimSpace(v.GetString("NATS_URL")),
		TrendingCron:   strings.TrimSpace(v.GetString("TRENDING_CRON")),
		TrendingWindow: v.GetDuration("TRENDING_WINDOW"),
		TrendingLimit:  v.GetInt("TRENDING_LIMIT"),
		TrendingTTL:    v.GetDuration("TRENDING_TTL"),
		BatchSize:      v.GetInt("WORKER_BATCH_SIZE"),
		BatchInterval:  time.Duration(v.GetInt("WORKER_BATCH_INTERVAL_MS")) * time.Millisecond,
		Durable:        strings.TrimSpace(v.GetString("WORKER_DURABLE")),
	}
	if cfg.DatabaseURL == "" {
		return WorkerConfig{}, errors.New("DATABASE_URL is required")
	}
	if cfg.TrendingWindow <= 0 {
		cfg.TrendingWindow = 7 * 24 * time.Hour
	}
	if cfg.TrendingLimit <= 0 {
		cfg.TrendingLimit = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 500 * time.Millisecond
	}
	return cfg, nil
}
