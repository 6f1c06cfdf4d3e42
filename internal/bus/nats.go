package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/config"
)

// NATSBus implements Bus over a single shared NATS connection. The
// connection is created once at startup; a failure to establish it is
// fatal to the process, everything after that reconnects on its own.
type NATSBus struct {
	conn *nats.Conn
	log  *zap.Logger
}

// NewNATSBus connects to the bus. The returned bus is safe for
// concurrent publish and subscribe use.
func NewNATSBus(cfg config.NATSConfig, log *zap.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("bus disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("bus reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{conn: conn, log: log}, nil
}

// Publish JSON-marshals payload and publishes it to channel.
func (b *NATSBus) Publish(ctx context.Context, channel string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateChannel(channel); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := b.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a synchronous subscription on channel. Consumers
// drive it with bounded Next calls so cancellation is never stuck
// behind a silent channel.
func (b *NATSBus) Subscribe(channel string) (Subscription, error) {
	sub, err := b.conn.SubscribeSync(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return &natsSubscription{sub: sub}, nil
}

// Close drains the connection, flushing pending publishes.
func (b *NATSBus) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain bus connection: %w", err)
	}
	return nil
}

// IsConnected reports the connection status, used by the health check.
func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Next(timeout time.Duration) ([]byte, error) {
	msg, err := s.sub.NextMsg(timeout)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return msg.Data, nil
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
