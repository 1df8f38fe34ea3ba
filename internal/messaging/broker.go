// Package messaging owns the AMQP connection shared by publishers and
// consumers, and reconnects it when the broker drops.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"remit/internal/config"
	"remit/internal/utils/retry"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("messaging: broker not connected")
	ErrClosed       = errors.New("messaging: broker closed")
)

type dialFunc func(url string) (*amqp.Connection, error)

// Broker is a process-scoped AMQP connection.
type Broker struct {
	cfg    config.BrokerConfig
	logger *zap.Logger
	dial   dialFunc
	policy *retry.Policy

	mu    sync.Mutex
	conn  *amqp.Connection
	pubCh *amqp.Channel

	connected atomic.Bool
	closed    atomic.Bool
}

func newBroker(cfg config.BrokerConfig, logger *zap.Logger, dial dialFunc) *Broker {
	policy := retry.New(cfg.MaxDialRetries, cfg.DialBaseDelay, cfg.DialMaxDelay)
	policy.Jitter = 0.5
	return &Broker{
		cfg:    cfg,
		logger: logger,
		dial:   dial,
		policy: policy,
	}
}

// Dial connects to the broker, retrying with exponential backoff, declares
// the shared topology and starts watching the connection.
func Dial(ctx context.Context, cfg config.BrokerConfig, logger *zap.Logger) (*Broker, error) {
	b := newBroker(cfg, logger, amqp.Dial)
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	go b.watch(ctx)
	return b, nil
}

func (b *Broker) connect(ctx context.Context) error {
	return b.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if b.closed.Load() {
			return retry.Permanent(ErrClosed)
		}
		b.logger.Info("connecting to broker",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", b.policy.MaxAttempts))

		conn, err := b.dial(b.cfg.URL)
		if err != nil {
			b.logger.Warn("broker connection failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("open channel: %w", err)
		}
		if err := declareTopology(ch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare topology: %w", err)
		}

		b.mu.Lock()
		b.conn = conn
		b.pubCh = ch
		b.mu.Unlock()
		b.connected.Store(true)

		b.logger.Info("connected to broker")
		return nil
	})
}

// watch redials whenever the connection closes unexpectedly.
func (b *Broker) watch(ctx context.Context) {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case amqpErr := <-closeCh:
			b.connected.Store(false)
			if b.closed.Load() {
				return
			}
			b.logger.Warn("broker connection lost, reconnecting", zap.Any("reason", amqpErr))
			if err := b.connect(ctx); err != nil {
				b.logger.Error("broker reconnect gave up", zap.Error(err))
				return
			}
		}
	}
}

// IsConnected reports whether the broker is currently reachable.
func (b *Broker) IsConnected() bool {
	return b.connected.Load()
}

// channel opens a fresh channel for a consumer.
func (b *Broker) channel() (*amqp.Channel, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil || conn.IsClosed() || !b.connected.Load() {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

// Close shuts the connection down and stops reconnecting.
func (b *Broker) Close() error {
	b.closed.Store(true)
	b.connected.Store(false)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.pubCh = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
