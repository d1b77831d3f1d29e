// Package evictor drains tracker events from JetStream and removes the
// completion stats they make stale from Redis.
package evictor

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/internal/platform/metrics"
	"github.com/example/anitrack/internal/statskeys"
)

// Subjects is the filter of the durable consumer.
const Subjects = "tracker.>"

// Outcome tells the consumer how to settle a message.
type Outcome int

const (
	Ack Outcome = iota
	Nak
	Term
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	default:
		return "term"
	}
}

// Evictor maps one tracker event to stats keys and deletes them.
type Evictor struct {
	Redis   statskeys.Deleter
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// Handle evicts the keys of the user and media entity named by the event.
// Events without a media entity evict every key of the user.
func (e *Evictor) Handle(ctx context.Context, subject string, data []byte) Outcome {
	ev, err := events.Decode(data)
	if err != nil {
		e.Log.Warn("evictor: undecodable event", zap.String("subject", subject), zap.Error(err))
		return Term
	}
	if ev.UserID == "" {
		e.Log.Warn("evictor: event without user", zap.String("subject", subject), zap.String("event_id", ev.EventID))
		return Term
	}

	kind, mediaID := ev.String("kind"), ev.String("media_id")
	var n int
	if kind == "" || mediaID == "" {
		n, err = statskeys.DeletePrefix(ctx, e.Redis, statskeys.Redis(statskeys.UserPrefix(ev.UserID)))
	} else {
		keys := statskeys.For(ev.UserID, kind, mediaID)
		for i, k := range keys {
			keys[i] = statskeys.Redis(k)
		}
		var deleted int64
		deleted, err = e.Redis.Del(ctx, keys...).Result()
		n = int(deleted)
	}
	if err != nil {
		e.Log.Warn("evictor: redis delete failed", zap.String("subject", subject), zap.String("user_id", ev.UserID), zap.Error(err))
		return Nak
	}
	e.Metrics.Evicted(subject, n)
	e.Log.Debug("evicted stats", zap.String("subject", subject), zap.String("user_id", ev.UserID), zap.Int("keys", n))
	return Ack
}

type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// Consumer wraps a JetStream pull subscription on the TRACKER stream.
type Consumer struct {
	sub       fetcher
	evictor   *Evictor
	batchSize int
	wait      time.Duration
	log       *zap.Logger
}

// New binds the durable pull consumer. The stream must already exist.
func New(js nats.JetStreamContext, e *Evictor, durable string, batchSize int, wait time.Duration, log *zap.Logger) (*Consumer, error) {
	sub, err := js.PullSubscribe(Subjects, durable, nats.BindStream(events.StreamTracker))
	if err != nil {
		return nil, err
	}
	return &Consumer{sub: sub, evictor: e, batchSize: batchSize, wait: wait, log: log}, nil
}

// Run processes batches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.log.Error("evictor: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.settle(msg, c.evictor.Handle(ctx, msg.Subject, msg.Data))
		}
	}
}

func (c *Consumer) settle(msg *nats.Msg, o Outcome) {
	var err error
	switch o {
	case Ack:
		err = msg.Ack()
	case Nak:
		err = msg.Nak()
	default:
		err = msg.Term()
	}
	if err != nil {
		c.log.Warn("evictor: settle", zap.Stringer("outcome", o), zap.String("subject", msg.Subject), zap.Error(err))
	}
}
