package messaging

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queues and exchanges shared by the API process and the fraud worker.
const (
	QueueCheckFraud        = "CheckFraud"
	QueueFraudEvents       = "FraudEvents"
	ExchangeFraudResult    = "FraudResult"
	ExchangeTransferEvents = "TransferEvents"
)

// declareTopology is idempotent and runs again after every reconnect.
func declareTopology(ch *amqp.Channel) error {
	for _, q := range []string{QueueCheckFraud, QueueFraudEvents} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return err
		}
	}
	for _, ex := range []string{ExchangeFraudResult, ExchangeTransferEvents} {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}
