package messaging

import (
	"context"
	"time"

	"remit/internal/utils/retry"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one delivery body. A nil return acks the message.
// Errors marked with retry.Permanent are dropped; other errors are requeued
// once and dropped on redelivery.
type Handler func(ctx context.Context, body []byte) error

// Subscription names what to consume. When Exchange is set, an exclusive
// server-named queue is bound to that fanout exchange on every (re)subscribe,
// so each process instance sees every message.
type Subscription struct {
	Queue    string
	Exchange string
	Prefetch int
}

// Consume delivers messages to handler until ctx ends, resubscribing after
// connection loss.
func (b *Broker) Consume(ctx context.Context, sub Subscription, handler Handler) error {
	resubscribe := retry.New(0, time.Second, 30*time.Second)
	attempt := 1
	for {
		if ctx.Err() != nil {
			return nil
		}
		if b.closed.Load() {
			return ErrClosed
		}

		deliveries, ch, err := b.subscribe(sub)
		if err != nil {
			attempt++
			wait := resubscribe.Backoff(attempt)
			b.logger.Warn("subscribe failed, retrying",
				zap.String("queue", sub.Queue),
				zap.String("exchange", sub.Exchange),
				zap.Duration("wait", wait),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		attempt = 1

		b.logger.Info("consuming", zap.String("queue", sub.Queue), zap.String("exchange", sub.Exchange))
		b.drain(ctx, deliveries, handler)
		_ = ch.Close()
	}
}

func (b *Broker) subscribe(sub Subscription) (<-chan amqp.Delivery, *amqp.Channel, error) {
	ch, err := b.channel()
	if err != nil {
		return nil, nil, err
	}

	prefetch := sub.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	queue := sub.Queue
	if sub.Exchange != "" {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
		if err := ch.QueueBind(q.Name, "", sub.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
		queue = q.Name
	}

	// Acks are always manual: drain settles every delivery. Only the
	// per-instance fanout queue is exclusive.
	const autoAck = false
	exclusive := sub.Exchange != ""
	deliveries, err := ch.Consume(queue, "", autoAck, exclusive, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return deliveries, ch, nil
}

func (b *Broker) drain(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			err := handler(ctx, d.Body)
			ack, requeue := disposition(err, d.Redelivered)
			if err != nil {
				b.logger.Warn("message handler failed",
					zap.String("routing_key", d.RoutingKey),
					zap.Bool("requeue", requeue),
					zap.Error(err))
			}
			var settleErr error
			if ack {
				settleErr = d.Ack(false)
			} else {
				settleErr = d.Nack(false, requeue)
			}
			if settleErr != nil {
				b.logger.Warn("message settle failed",
					zap.Uint64("delivery_tag", d.DeliveryTag),
					zap.Error(settleErr))
			}
		}
	}
}

// disposition decides between ack, requeue and drop for a handled message.
func disposition(err error, redelivered bool) (ack, requeue bool) {
	if err == nil {
		return true, false
	}
	if retry.IsPermanent(err) || redelivered {
		return false, false
	}
	return false, true
}
