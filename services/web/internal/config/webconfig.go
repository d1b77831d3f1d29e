package config

import (
	"errors"
	"strings"
	"time"

	platformconfig "github.com/example/anitrack/internal/platform/config"
)

type TMDBConfig struct {
	BaseURL string
	APIKey  string
}

type WebConfig struct {
	JWTSecret      []byte
	AdminSecret    string
	TokenTTL       time.Duration
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	StatsCacheSize int
	StatsCacheTTL  time.Duration
	TMDB           TMDBConfig
	TVDB           TMDBConfig
	// ExternalRPS bounds outbound TMDB/TVDB calls per source.
	ExternalRPS float64
}

func LoadWeb(app platformconfig.AppConfig) (WebConfig, error) {
	v := platformconfig.NewViper()
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("STATS_CACHE_SIZE", 4096)
	v.SetDefault("STATS_CACHE_TTL", "5m")
	v.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("TVDB_BASE_URL", "https://api4.thetvdb.com/v4")
	v.SetDefault("EXTERNAL_RPS", 4.0)

	secret := strings.TrimSpace(v.GetString("JWT_SECRET"))
	if secret == "" {
		return WebConfig{}, errors.New("JWT_SECRET is required")
	}
	cfg := WebConfig{
		JWTSecret:      []byte(secret),
		AdminSecret:    strings.TrimSpace(v.GetString("ADMIN_SECRET")),
		TokenTTL:       v.GetDuration("TOKEN_TTL"),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisURL:       strings.TrimSpace(v.GetString("REDIS_URL")),
		NATSURL:        strings.TrimSpace(v.GetString("NATS_URL")),
		AllowedOrigins: platformconfig.SplitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		StatsCacheSize: v.GetInt("STATS_CACHE_SIZE"),
		StatsCacheTTL:  v.GetDuration("STATS_CACHE_TTL"),
		TMDB:           TMDBConfig{BaseURL: v.GetString("TMDB_BASE_URL"), APIKey: v.GetString("TMDB_API_KEY")},
		TVDB:           TMDBConfig{BaseURL: v.GetString("TVDB_BASE_URL"), APIKey: v.GetString("TVDB_API_KEY")},
		ExternalRPS:    v.GetFloat64("EXTERNAL_RPS"),
	}
	if app.IsProduction() {
		if cfg.AdminSecret == "" {
			return WebConfig{}, errors.New("ADMIN_SECRET is required in production")
		}
		if cfg.DatabaseURL == "" {
			return WebConfig{}, errors.New("DATABASE_URL is required in production")
		}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.StatsCacheSize <= 0 {
		cfg.StatsCacheSize = 4096
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = 5 * time.Minute
	}
	return cfg, nil
}
