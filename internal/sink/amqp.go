package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher is the subset of *amqp091.Channel used by AMQPSink.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPConfig configures a RabbitMQ sink. Envelopes are routed by
// "<bot>.<topic>" on a topic exchange.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type AMQPSink struct {
	ch       AMQPPublisher
	closers  []io.Closer
	exchange string
	codec    Codec
}

var dialAMQP = amqp091.Dial

// DialAMQP opens a connection and channel and declares the exchange.
func DialAMQP(cfg AMQPConfig, codec Codec) (*AMQPSink, error) {
	conn, err := dialAMQP(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sink: amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sink: amqp: channel: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sink: amqp: declare %s: %w", cfg.Exchange, err)
		}
	}
	s := NewAMQPSinkWithChannel(ch, cfg.Exchange, codec)
	s.closers = []io.Closer{ch, conn}
	return s, nil
}

func NewAMQPSinkWithChannel(ch AMQPPublisher, exchange string, codec Codec) *AMQPSink {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &AMQPSink{ch: ch, exchange: exchange, codec: codec}
}

func (s *AMQPSink) Publish(ctx context.Context, env Envelope) error {
	body, err := s.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("sink: amqp: encode: %w", err)
	}
	key := env.Topic
	if env.Bot != "" {
		key = env.Bot + "." + env.Topic
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, key, false, false, amqp091.Publishing{
		ContentType:  s.codec.ContentType(),
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.ID.String(),
		Timestamp:    env.Time,
		Type:         env.Topic,
		AppId:        "switchboard",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("sink: amqp: publish %s: %w", key, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
