package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

func fixedClock(t *testing.T) time.Time {
	t.Helper()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = orig })
	return at
}

func TestTopics(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{UpdateTopic("callback_query"), "update.callback_query"},
		{CommandTopic("/start"), "command.start"},
		{CommandTopic("^/echo (.+)$"), "command.__echo______"},
		{ReplyTopic("/ask"), "reply.ask"},
		{CommandTopic("/"), "command._"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	at := fixedClock(t)
	a := NewEnvelope("main", "status", "x")
	b := NewEnvelope("main", "status", "x")
	if a.ID == b.ID {
		t.Error("envelope ids repeat")
	}
	if !a.Time.Equal(at) || a.Bot != "main" || a.Topic != "status" {
		t.Errorf("envelope = %+v", a)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		c, err := CodecByName(name)
		if err != nil {
			t.Fatalf("CodecByName(%q): %v", name, err)
		}
		if name != "" && c.Name() != name {
			t.Errorf("Name = %q, want %q", c.Name(), name)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func TestCBORCodec_Deterministic(t *testing.T) {
	fixedClock(t)
	env := NewEnvelope("main", "update.message", map[string]any{"b": 1, "a": "x", "c": []string{"y"}})
	c := CBORCodec{}
	first, err := c.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Marshal(env)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}

	var back Envelope
	if err := c.Unmarshal(first, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != env.ID || back.Topic != "update.message" || !back.Time.Equal(env.Time) {
		t.Errorf("decoded = %+v", back)
	}
	payload, ok := back.Payload.(map[string]any)
	if !ok || payload["a"] != "x" {
		t.Errorf("payload = %#v", back.Payload)
	}
}

type fakeRedis struct {
	mu       sync.Mutex
	channels []string
	bodies   [][]byte
	err      error
	closed   bool
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.channels = append(f.channels, channel)
	f.bodies = append(f.bodies, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error { f.closed = true; return nil }

func TestRedisSink(t *testing.T) {
	fixedClock(t)
	fake := &fakeRedis{}
	s := NewRedisSinkWithClient(fake, "sb:", nil)
	env := NewEnvelope("main", CommandTopic("/start"), map[string]string{"remainder": "now"})
	if err := s.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fake.channels) != 1 || fake.channels[0] != "sb:command.start" {
		t.Fatalf("channels = %v", fake.channels)
	}
	if !strings.Contains(string(fake.bodies[0]), `"remainder":"now"`) {
		t.Errorf("body = %s", fake.bodies[0])
	}

	fake.err = errors.New("connection refused")
	if err := s.Publish(context.Background(), env); err == nil || !strings.Contains(err.Error(), "command.start") {
		t.Errorf("err = %v", err)
	}
	if err := s.Close(); err != nil || !fake.closed {
		t.Errorf("Close: %v closed=%v", err, fake.closed)
	}
}

type fakeChannel struct {
	exchange, key string
	msg           amqp091.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestAMQPSink(t *testing.T) {
	at := fixedClock(t)
	ch := &fakeChannel{}
	s := NewAMQPSinkWithChannel(ch, "switchboard", CBORCodec{})
	env := NewEnvelope("main", TopicUnauthorized, nil)
	if err := s.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ch.exchange != "switchboard" || ch.key != "main.unauthorized" {
		t.Errorf("routed to %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/cbor" || ch.msg.MessageId != env.ID.String() || !ch.msg.Timestamp.Equal(at) {
		t.Errorf("msg = %+v", ch.msg)
	}
	if ch.msg.DeliveryMode != amqp091.Persistent {
		t.Errorf("delivery mode = %d", ch.msg.DeliveryMode)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafkaSink(t *testing.T) {
	fixedClock(t)
	w := &fakeWriter{}
	s := NewKafkaSinkWithWriter(w, nil)
	if err := s.Publish(context.Background(), NewEnvelope("main", UpdateTopic("message"), nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "main" {
		t.Errorf("key = %q", m.Key)
	}
	if len(m.Headers) != 2 || string(m.Headers[0].Value) != "update.message" {
		t.Errorf("headers = %v", m.Headers)
	}
	_ = s.Close()
	if !w.closed {
		t.Error("writer not closed")
	}
}

type failSink struct{ err error }

func (f failSink) Publish(context.Context, Envelope) error { return f.err }
func (f failSink) Close() error                            { return f.err }

func TestMulti(t *testing.T) {
	w := &fakeWriter{}
	boom := errors.New("boom")
	m := Multi{failSink{boom}, NewKafkaSinkWithWriter(w, nil)}
	err := m.Publish(context.Background(), NewEnvelope("main", TopicStatus, nil))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(w.msgs) != 1 {
		t.Error("later sink skipped after a failure")
	}
	if err := m.Close(); !errors.Is(err, boom) || !w.closed {
		t.Errorf("Close = %v closed=%v", err, w.closed)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	if err := s.Publish(context.Background(), NewEnvelope("main", TopicStatus, nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "topic=status") || !strings.Contains(buf.String(), "bot=main") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestBuild(t *testing.T) {
	s, err := Build(Config{}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := s.(LogSink); !ok {
		t.Errorf("empty config built %T, want LogSink", s)
	}

	s, err = Build(Config{Log: true, Redis: RedisConfig{Addr: "127.0.0.1:6379"}}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m, ok := s.(Multi); !ok || len(m) != 2 {
		t.Errorf("built %T, want Multi of 2", s)
	}
	_ = s.Close()

	if _, err := Build(Config{Kafka: KafkaConfig{Brokers: []string{"k:9092"}}}, nil); err == nil {
		t.Error("expected error for kafka without topic")
	}
	if _, err := Build(Config{Codec: "xml"}, nil); err == nil {
		t.Error("expected error for unknown codec")
	}
}
