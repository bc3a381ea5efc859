package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageReader is the part of *kafka.Reader the consumer loop needs
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource consumes a topic as part of a consumer group
type KafkaSource struct {
	cfg       config.KafkaConfig
	logger    *logrus.Entry
	newReader func(config.KafkaConfig) messageReader
	retry     time.Duration

	mu     sync.Mutex
	reader messageReader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaSource creates a Kafka source; nothing connects until Subscribe
func NewKafkaSource(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaSource {
	return &KafkaSource{
		cfg:       cfg,
		logger:    logger.WithFields(logrus.Fields{"component": "transport", "transport": "kafka", "topic": cfg.Topic}),
		newReader: newKafkaReader,
		retry:     time.Second,
	}
}

func newKafkaReader(cfg config.KafkaConfig) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		Dialer:         &kafka.Dialer{ClientID: cfg.ClientID, Timeout: 10 * time.Second},
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
		MaxAttempts:    3,
	})
}

// Name implements Source
func (s *KafkaSource) Name() string { return "kafka" }

// Subscribe starts reading the topic in the background
func (s *KafkaSource) Subscribe(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		return ErrAlreadySubscribed
	}

	ctx, cancel := context.WithCancel(ctx)
	s.reader = s.newReader(s.cfg)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.consume(ctx, s.reader, h, s.done)
	s.logger.WithField("brokers", s.cfg.Brokers).Info("kafka consumer started")
	return nil
}

func (s *KafkaSource) consume(ctx context.Context, r messageReader, h Handler, done chan struct{}) {
	defer close(done)
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			s.logger.WithError(err).Error("failed to read kafka message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry):
			}
			continue
		}
		safeHandle(ctx, h, msg.Value, s.logger)
	}
}

// Unsubscribe waits for the read loop to exit and closes the reader
func (s *KafkaSource) Unsubscribe() error {
	s.mu.Lock()
	reader, cancel, done := s.reader, s.cancel, s.done
	s.reader, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if reader == nil {
		return nil
	}
	cancel()
	<-done
	if err := reader.Close(); err != nil {
		return err
	}
	s.logger.Info("kafka consumer stopped")
	return nil
}
