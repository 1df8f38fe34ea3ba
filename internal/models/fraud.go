package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fraud outcome labels
const (
	FraudStatusApproved = "approved"
	FraudStatusDeclined = "declined"
)

// FraudCheckRequest is published to the CheckFraud queue.
type FraudCheckRequest struct {
	TransferID string          `json:"transferId"`
	Amount     decimal.Decimal `json:"amount"`
	AuthToken  string          `json:"authToken,omitempty"`
}

// FraudCheckOutcome is the detector's verdict, cached by transfer id.
type FraudCheckOutcome struct {
	TransferID string          `json:"transferId"`
	IsFraud    bool            `json:"isFraud"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}

// FraudEvent is the audit event emitted for downstream query services.
type FraudEvent struct {
	EventType  string          `json:"event_type"`
	TransferID string          `json:"transferId"`
	IsFraud    bool            `json:"isFraud"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Decided reports whether the outcome carries a verdict.
func (o *FraudCheckOutcome) Decided() bool {
	return o.Status == FraudStatusApproved || o.Status == FraudStatusDeclined
}
