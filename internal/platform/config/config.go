// Package config loads the settings every service shares. Values come from
// the environment through viper; service-specific settings live next to the
// service that needs them.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr string
}

type GRPCConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
	HTTP        HTTPConfig
	GRPC        GRPCConfig
}

// IsProduction reports whether APP_ENV selects production. Production refuses
// the in-memory development fallbacks.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// NewViper returns a viper instance bound to the process environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

func Load() (AppConfig, error) {
	v := NewViper()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")

	cfg := AppConfig{
		ServiceName: strings.TrimSpace(v.GetString("SERVICE_NAME")),
		Env:         strings.TrimSpace(v.GetString("APP_ENV")),
		LogLevel:    strings.TrimSpace(v.GetString("LOG_LEVEL")),
		HTTP:        HTTPConfig{Addr: strings.TrimSpace(v.GetString("HTTP_ADDR"))},
		GRPC:        GRPCConfig{Addr: strings.TrimSpace(v.GetString("GRPC_ADDR"))},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// SplitList parses a comma separated env value, dropping empty items.
func SplitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
