package sink

import (
	"errors"
	"fmt"
	"log/slog"
)

// Config selects the sinks a router publishes to. Each backend is
// enabled by its address being set.
type Config struct {
	Codec string      `mapstructure:"codec"`
	Log   bool        `mapstructure:"log"`
	Redis RedisConfig `mapstructure:"redis"`
	AMQP  AMQPConfig  `mapstructure:"amqp"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// Build opens every enabled sink. With nothing enabled the result is a
// LogSink so routed traffic is still visible.
func Build(cfg Config, logger *slog.Logger) (Sink, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	var out Multi
	if cfg.Log {
		out = append(out, LogSink{Logger: logger})
	}
	if cfg.Redis.Addr != "" {
		out = append(out, NewRedisSink(cfg.Redis, codec))
	}
	if cfg.AMQP.URL != "" {
		s, err := DialAMQP(cfg.AMQP, codec)
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		out = append(out, s)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		if cfg.Kafka.Topic == "" {
			return nil, errors.Join(fmt.Errorf("sink: kafka: topic is required"), out.Close())
		}
		out = append(out, NewKafkaSink(cfg.Kafka, codec))
	}

	if len(out) == 0 {
		return LogSink{Logger: logger}, nil
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}
