package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer used by KafkaSink.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a Kafka sink. All envelopes go to one topic,
// keyed by bot name so each bot's stream stays ordered.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type KafkaSink struct {
	w     KafkaWriter
	codec Codec
}

func NewKafkaSink(cfg KafkaConfig, codec Codec) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaSinkWithWriter(w, codec)
}

func NewKafkaSinkWithWriter(w KafkaWriter, codec Codec) *KafkaSink {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &KafkaSink{w: w, codec: codec}
}

func (s *KafkaSink) Publish(ctx context.Context, env Envelope) error {
	value, err := s.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("sink: kafka: encode: %w", err)
	}
	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Bot),
		Value: value,
		Time:  env.Time,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(env.Topic)},
			{Key: "content-type", Value: []byte(s.codec.ContentType())},
		},
	})
	if err != nil {
		return fmt.Errorf("sink: kafka: publish %s: %w", env.Topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}
