package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/jengzang/fleet-tracking-go/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMQPSource consumes a durable queue bound to a topic exchange
type AMQPSource struct {
	cfg    config.AMQPConfig
	logger *logrus.Entry

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAMQPSource creates an AMQP source; nothing connects until Subscribe
func NewAMQPSource(cfg config.AMQPConfig, logger *logrus.Logger) *AMQPSource {
	return &AMQPSource{
		cfg:    cfg,
		logger: logger.WithFields(logrus.Fields{"component": "transport", "transport": "amqp", "queue": cfg.Queue}),
	}
}

// Name implements Source
func (s *AMQPSource) Name() string { return "amqp" }

// Subscribe declares the topology and starts consuming in the background
func (s *AMQPSource) Subscribe(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadySubscribed
	}

	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	deliveries, err := s.setup(ch)
	if err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.conn, s.channel, s.cancel = conn, ch, cancel
	s.done = make(chan struct{})

	go s.consume(ctx, deliveries, h, s.done)
	s.logger.WithField("exchange", s.cfg.Exchange).Info("amqp consumer started")
	return nil
}

func (s *AMQPSource) setup(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	if s.cfg.Prefetch > 0 {
		if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set qos: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", s.cfg.Queue, err)
	}
	if s.cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(s.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare exchange %s: %w", s.cfg.Exchange, err)
		}
		if err := ch.QueueBind(s.cfg.Queue, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", s.cfg.Queue, err)
		}
	}
	deliveries, err := ch.Consume(s.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %s: %w", s.cfg.Queue, err)
	}
	return deliveries, nil
}

// consume hands every delivery to h and acks it, including payloads the
// handler rejects
func (s *AMQPSource) consume(ctx context.Context, deliveries <-chan amqp.Delivery, h Handler, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				s.logger.Warn("amqp delivery channel closed")
				return
			}
			safeHandle(ctx, h, d.Body, s.logger)
			if err := d.Ack(false); err != nil {
				s.logger.WithError(err).Error("failed to ack delivery")
			}
		}
	}
}

// Unsubscribe waits for the consumer to exit and closes the channel and connection
func (s *AMQPSource) Unsubscribe() error {
	s.mu.Lock()
	conn, ch, cancel, done := s.conn, s.channel, s.cancel, s.done
	s.conn, s.channel, s.cancel, s.done = nil, nil, nil, nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	<-done
	if err := ch.Close(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.logger.Info("amqp consumer stopped")
	return nil
}
