package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/jengzang/fleet-tracking-go/internal/config"
	"github.com/sirupsen/logrus"
)

// Handler receives one raw telemetry payload. The payload shape is never
// assumed here; decoding and normalization belong to the handler.
type Handler func(ctx context.Context, payload []byte)

// Source is a live telemetry feed. Subscribe starts delivery in the
// background and returns once the feed is connected; Unsubscribe stops it
// and releases the connection.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, h Handler) error
	Unsubscribe() error
}

var (
	ErrAlreadySubscribed = errors.New("transport already subscribed")
	ErrUnknownKind       = errors.New("unknown transport kind")
)

// New builds the source selected by cfg.Kind
func New(cfg config.TransportConfig, logger *logrus.Logger) (Source, error) {
	switch cfg.Kind {
	case "", "none":
		return NoopSource{}, nil
	case "kafka":
		return NewKafkaSource(cfg.Kafka, logger), nil
	case "nats":
		return NewNATSSource(cfg.NATS, logger), nil
	case "amqp":
		return NewAMQPSource(cfg.AMQP, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// NoopSource is used when telemetry only arrives over HTTP push
type NoopSource struct{}

func (NoopSource) Name() string                             { return "none" }
func (NoopSource) Subscribe(context.Context, Handler) error { return nil }
func (NoopSource) Unsubscribe() error                       { return nil }

// safeHandle runs h and recovers a panic so one payload cannot stop a feed
func safeHandle(ctx context.Context, h Handler, payload []byte, logger *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("telemetry handler panicked")
		}
	}()
	h(ctx, payload)
}
