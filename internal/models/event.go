package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome event types
const (
	EventTransferCompleted = "TransferCompleted"
	EventTransferDeclined  = "TransferDeclined"
	EventTransferFailed    = "TransferFailed"
	EventBalanceUpdated    = "BalanceUpdated"
)

// OutcomeEvent is published once per terminal transition. Consumers
// de-duplicate on (TransferID, Status).
type OutcomeEvent struct {
	EventType   string          `json:"event_type"`
	TransferID  string          `json:"transferId"`
	Status      TransferStatus  `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	FromAccount string          `json:"fromAccount"`
	ToAccount   string          `json:"toAccount"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// BalanceUpdateEvent tells consumers an account balance moved.
type BalanceUpdateEvent struct {
	EventType  string          `json:"event_type"`
	TransferID string          `json:"transferId"`
	AccountRef string          `json:"accountRef"`
	Delta      decimal.Decimal `json:"delta"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewOutcomeEvent builds the event for a transfer in a terminal state.
func NewOutcomeEvent(t *Transfer, at time.Time) OutcomeEvent {
	eventType := EventTransferFailed
	switch t.Status {
	case TransferStatusCompleted:
		eventType = EventTransferCompleted
	case TransferStatusDeclined:
		eventType = EventTransferDeclined
	}
	return OutcomeEvent{
		EventType:   eventType,
		TransferID:  t.TransferID,
		Status:      t.Status,
		Amount:      t.Amount,
		Currency:    t.Currency,
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Reason:      t.FailureReason,
		Timestamp:   at,
	}
}
