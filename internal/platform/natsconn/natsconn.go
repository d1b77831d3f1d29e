// Package natsconn connects to NATS with a bounded reconnect policy and
// declares JetStream streams.
package natsconn

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/config"
)

// Options configures the connection. Zero reconnect values fall back to
// NATS_MAX_RECONNECTS and NATS_RECONNECT_WAIT.
type Options struct {
	URL           string
	Name          string
	MaxReconnects int           // default from NATS_MAX_RECONNECTS or 5
	ReconnectWait time.Duration // default from NATS_RECONNECT_WAIT or 2s
	Logger        *zap.Logger
}

// Connect dials opts.URL once; the reconnect policy only applies after the
// first successful connect.
func Connect(opts Options) (*nats.Conn, error) {
	if opts.URL == "" {
		return nil, errors.New("nats: url is required")
	}
	if opts.MaxReconnects == 0 || opts.ReconnectWait == 0 {
		maxReconnects, wait := tuning()
		if opts.MaxReconnects == 0 {
			opts.MaxReconnects = maxReconnects
		}
		if opts.ReconnectWait == 0 {
			opts.ReconnectWait = wait
		}
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(false),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}
	if log := opts.Logger; log != nil {
		natsOpts = append(natsOpts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		)
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			opts.URL, opts.MaxReconnects, opts.ReconnectWait, err)
	}
	return nc, nil
}

// StreamManager is the subset of nats.JetStreamContext used by EnsureStream.
type StreamManager interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureStream creates the stream, or updates it in place when it already exists.
func EnsureStream(js StreamManager, cfg *nats.StreamConfig, log *zap.Logger) error {
	_, err := js.AddStream(cfg)
	if err == nil {
		log.Info("nats: stream created", zap.String("stream", cfg.Name))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("add stream %s: %w", cfg.Name, err)
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		log.Warn("nats: stream update failed (may already be up to date)",
			zap.String("stream", cfg.Name), zap.Error(err))
	}
	return nil
}

// tuning reads the reconnect policy from the environment.
func tuning() (int, time.Duration) {
	v := config.NewViper()
	v.SetDefault("NATS_MAX_RECONNECTS", 5)
	v.SetDefault("NATS_RECONNECT_WAIT", 2*time.Second)
	maxReconnects := v.GetInt("NATS_MAX_RECONNECTS")
	if maxReconnects < 0 {
		maxReconnects = 5
	}
	wait := v.GetDuration("NATS_RECONNECT_WAIT")
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return maxReconnects, wait
}
