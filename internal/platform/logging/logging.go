package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the JSON production logger used by every service.
func New(level string) (*zap.Logger, error) {
	return NewWithFields(level)
}

// NewWithFields is New plus fields attached to every entry, typically the
// service name.
func NewWithFields(level string, fields ...zap.Field) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(strings.TrimSpace(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		log = log.With(fields...)
	}
	return log, nil
}
