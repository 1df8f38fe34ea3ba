package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON messages to the broker.
type Publisher interface {
	// Publish encodes body and sends it to exchange with routingKey. Use the
	// empty exchange and a queue name as key for direct queue delivery.
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	IsConnected() bool
}

var _ Publisher = (*Broker)(nil)

func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || !b.connected.Load() {
		return ErrNotConnected
	}
	// A channel closed by a previous broker error is reopened lazily.
	if b.pubCh == nil || b.pubCh.IsClosed() {
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		b.pubCh = ch
	}

	err = b.pubCh.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %q/%q: %w", exchange, routingKey, err)
	}
	return nil
}
