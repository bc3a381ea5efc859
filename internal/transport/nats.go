package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSSource subscribes to a subject, load-balanced across replicas when a
// queue group is configured
type NATSSource struct {
	cfg    config.NATSConfig
	logger *logrus.Entry

	mu     sync.Mutex
	conn   *nats.Conn
	sub    *nats.Subscription
	cancel context.CancelFunc
}

// NewNATSSource creates a NATS source; nothing connects until Subscribe
func NewNATSSource(cfg config.NATSConfig, logger *logrus.Logger) *NATSSource {
	return &NATSSource{
		cfg:    cfg,
		logger: logger.WithFields(logrus.Fields{"component": "transport", "transport": "nats", "subject": cfg.Subject}),
	}
}

// Name implements Source
func (s *NATSSource) Name() string { return "nats" }

// Subscribe connects and subscribes to the configured subject
func (s *NATSSource) Subscribe(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadySubscribed
	}

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("fleet-tracking"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var sub *nats.Subscription
	if s.cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.msgHandler(ctx, h))
	} else {
		sub, err = nc.Subscribe(s.cfg.Subject, s.msgHandler(ctx, h))
	}
	if err != nil {
		cancel()
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Subject, err)
	}

	s.conn, s.sub, s.cancel = nc, sub, cancel
	s.logger.Info("nats subscription started")
	return nil
}

func (s *NATSSource) msgHandler(ctx context.Context, h Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		safeHandle(ctx, h, msg.Data, s.logger)
	}
}

// Unsubscribe removes the subscription and closes the connection
func (s *NATSSource) Unsubscribe() error {
	s.mu.Lock()
	nc, sub, cancel := s.conn, s.sub, s.cancel
	s.conn, s.sub, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if nc == nil {
		return nil
	}
	cancel()
	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	nc.Close()
	s.logger.Info("nats subscription stopped")
	return err
}
