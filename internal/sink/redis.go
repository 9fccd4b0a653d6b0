package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher is the subset of *redis.Client used by RedisSink.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisConfig configures a Redis pub/sub sink.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"channel_prefix"`
}

// RedisSink publishes each envelope on the channel prefix+topic.
type RedisSink struct {
	client RedisPublisher
	prefix string
	codec  Codec
}

// NewRedisSink connects lazily; the first Publish dials the server.
func NewRedisSink(cfg RedisConfig, codec Codec) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisSinkWithClient(client, cfg.Prefix, codec)
}

func NewRedisSinkWithClient(client RedisPublisher, prefix string, codec Codec) *RedisSink {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &RedisSink{client: client, prefix: prefix, codec: codec}
}

func (s *RedisSink) Publish(ctx context.Context, env Envelope) error {
	data, err := s.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("sink: redis: encode: %w", err)
	}
	if err := s.client.Publish(ctx, s.prefix+env.Topic, data).Err(); err != nil {
		return fmt.Errorf("sink: redis: publish %s: %w", env.Topic, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
