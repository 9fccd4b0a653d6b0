// Package sink publishes routed updates, command decisions and status
// events to external consumers.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topics used by the router.
const (
	TopicUnauthorized = "unauthorized"
	TopicStatus       = "status"
)

// UpdateTopic is the topic for a normalized update of the given kind.
func UpdateTopic(kind string) string { return "update." + kind }

// CommandTopic is the topic for decisions of one command pattern. The
// pattern is reduced to characters every broker accepts in a topic.
func CommandTopic(pattern string) string {
	return "command." + topicSafe(pattern)
}

// ReplyTopic is the topic for answers to a pending command.
func ReplyTopic(pattern string) string {
	return "reply." + topicSafe(pattern)
}

func topicSafe(s string) string {
	s = strings.TrimPrefix(s, "/")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// Envelope wraps every published payload.
type Envelope struct {
	ID      uuid.UUID `json:"id" cbor:"id"`
	Bot     string    `json:"bot" cbor:"bot"`
	Topic   string    `json:"topic" cbor:"topic"`
	Time    time.Time `json:"time" cbor:"time"`
	Payload any       `json:"payload" cbor:"payload"`
}

// now is the clock, replaceable in tests.
var now = time.Now

// NewEnvelope stamps payload with a fresh id and the current time.
func NewEnvelope(bot, topic string, payload any) Envelope {
	return Envelope{
		ID:      uuid.New(),
		Bot:     bot,
		Topic:   topic,
		Time:    now().UTC(),
		Payload: payload,
	}
}

// Sink accepts envelopes. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes envelopes to the structured log.
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (l LogSink) Publish(ctx context.Context, env Envelope) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, l.Level, "routed",
		"component", "sink",
		"operation", "publish",
		"id", env.ID.String(),
		"bot", env.Bot,
		"topic", env.Topic,
	)
	return nil
}

func (LogSink) Close() error { return nil }
