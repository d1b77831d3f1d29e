// Package events publishes domain events to NATS. Tracker, social and
// analytics events go through JetStream; stats cache invalidations are
// broadcast on core NATS so every web instance sees them.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/natsconn"
)

const (
	SubjectMarkChanged     = "tracker.mark.changed"
	SubjectLogCreated      = "tracker.log.created"
	SubjectReviewCreated   = "tracker.review.created"
	SubjectPostCreated     = "social.post.created"
	SubjectPostLiked       = "social.post.liked"
	SubjectPageViewed      = "analytics.page.viewed"
	SubjectStatsInvalidate = "cache.stats.invalidate"
)

const (
	StreamTracker   = "TRACKER"
	StreamSocial    = "SOCIAL"
	StreamAnalytics = "ANALYTICS"
)

// Event is the canonical envelope sent on every subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Decode parses an envelope received from NATS.
func Decode(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// String returns a string property or "" when absent.
func (e Event) String(key string) string {
	v, _ := e.Properties[key].(string)
	return v
}

// Strings returns a []string property; JSON arrays decode as []any.
func (e Event) Strings(key string) []string {
	switch v := e.Properties[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

type corePublisher interface {
	Publish(subj string, data []byte) error
}

// Publisher publishes events to NATS.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js   asyncPublisher
	core corePublisher
	log  *zap.Logger
	now  func() time.Time
}

// New creates a Publisher over an existing connection.
// Pass nc=nil to get a no-op stub (useful in tests and without NATS).
func New(nc *nats.Conn, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if nc == nil {
		return &Publisher{log: log}, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{js: js, core: nc, log: log, now: time.Now}, nil
}

// EnsureStreams declares the JetStream streams this service publishes to.
func EnsureStreams(js natsconn.StreamManager, log *zap.Logger) error {
	streams := []*nats.StreamConfig{
		{Name: StreamTracker, Subjects: []string{"tracker.>"}, Storage: nats.FileStorage, MaxAge: 7 * 24 * time.Hour},
		{Name: StreamSocial, Subjects: []string{"social.>"}, Storage: nats.FileStorage, MaxAge: 7 * 24 * time.Hour},
		{Name: StreamAnalytics, Subjects: []string{"analytics.>"}, Storage: nats.FileStorage, MaxAge: 30 * 24 * time.Hour},
	}
	for _, cfg := range streams {
		if err := natsconn.EnsureStream(js, cfg, log); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) envelope(eventName, userID string, props map[string]any) ([]byte, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	return json.Marshal(Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: now().UTC(),
		Properties: props,
	})
}

// Publish sends an event asynchronously (fire-and-forget) on JetStream.
// Failures are logged as warnings and never surface to the caller.
func (p *Publisher) Publish(subject, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := p.envelope(subject, userID, props)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Invalidate broadcasts stats cache keys and an optional prefix to evict.
func (p *Publisher) Invalidate(userID string, keys []string, prefix string) {
	if p == nil || p.core == nil {
		return
	}
	props := map[string]any{"keys": keys}
	if prefix != "" {
		props["prefix"] = prefix
	}
	data, err := p.envelope(SubjectStatsInvalidate, userID, props)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("subject", SubjectStatsInvalidate), zap.Error(err))
		return
	}
	if err := p.core.Publish(SubjectStatsInvalidate, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", SubjectStatsInvalidate), zap.Error(err))
	}
}
