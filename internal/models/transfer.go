package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the saga state of a transfer.
type TransferStatus string

const (
	TransferStatusPending              TransferStatus = "PENDING"
	TransferStatusFraudCheckInProgress TransferStatus = "FRAUD_CHECK_IN_PROGRESS"
	TransferStatusApproved             TransferStatus = "APPROVED"
	TransferStatusCompleted            TransferStatus = "COMPLETED"
	TransferStatusDeclined             TransferStatus = "DECLINED"
	TransferStatusFailed               TransferStatus = "FAILED"
)

// Failure reasons recorded on declined and failed transfers.
const (
	ReasonFraudDeclined           = "FRAUD_DECLINED"
	ReasonFraudCheckTimeout       = "FRAUD_CHECK_TIMEOUT"
	ReasonFraudCheckRequestFailed = "FRAUD_CHECK_REQUEST_FAILED"
	ReasonInsufficientFunds       = "INSUFFICIENT_FUNDS"
	ReasonAccountNotFound         = "ACCOUNT_NOT_FOUND"
	ReasonLedgerMutationFailed    = "LEDGER_MUTATION_FAILED"
	ReasonSagaInterrupted         = "SAGA_INTERRUPTED"
)

// transitions lists, for each status, the statuses it may move to.
var transitions = map[TransferStatus][]TransferStatus{
	TransferStatusPending: {
		TransferStatusFraudCheckInProgress,
		TransferStatusDeclined,
		TransferStatusFailed,
	},
	TransferStatusFraudCheckInProgress: {
		TransferStatusApproved,
		TransferStatusDeclined,
		TransferStatusFailed,
	},
	TransferStatusApproved: {
		TransferStatusCompleted,
		TransferStatusFailed,
	},
}

// IsTerminal reports whether no further transition is possible.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusDeclined || s == TransferStatusFailed
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Predecessors returns every status from which s can be reached in one step.
func (s TransferStatus) Predecessors() []TransferStatus {
	var out []TransferStatus
	for from, targets := range transitions {
		for _, to := range targets {
			if to == s {
				out = append(out, from)
			}
		}
	}
	return out
}

// Transfer is the durable saga record. TransferID and IdempotencyKey are both
// unique at the storage layer.
type Transfer struct {
	ID             uint            `gorm:"primarykey" json:"-"`
	TransferID     string          `gorm:"size:64;uniqueIndex;not null" json:"transfer_id"`
	IdempotencyKey string          `gorm:"size:128;uniqueIndex;not null" json:"idempotency_key"`
	RequestHash    string          `gorm:"size:64;not null" json:"-"`
	RequesterID    string          `gorm:"size:64;not null" json:"requester_id"`
	FromAccount    string          `gorm:"size:64;index;not null" json:"from_account"`
	ToAccount      string          `gorm:"size:64;index;not null" json:"to_account"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency       string          `gorm:"size:3;default:'USD'" json:"currency"`
	Description    string          `json:"description,omitempty"`
	Status         TransferStatus  `gorm:"size:32;index;not null;default:'PENDING'" json:"status"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	FraudChecked   bool            `gorm:"default:false" json:"fraud_checked"`
	IsFraud        bool            `gorm:"default:false" json:"is_fraud"`
	FraudStatus    string          `json:"fraud_status,omitempty"`
	FraudCheckedAt *time.Time      `json:"fraud_checked_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `gorm:"index" json:"updated_at"`
}

// TransferRequest is a caller's ask to move Amount from FromAccount to
// ToAccount. An empty IdempotencyKey defaults to the generated transfer id.
type TransferRequest struct {
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	FromAccount    string          `json:"from_account"`
	ToAccount      string          `json:"to_account"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
}
