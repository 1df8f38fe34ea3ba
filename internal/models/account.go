package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account statuses
const (
	AccountStatusActive = "active"
	AccountStatusFrozen = "frozen"
)

// Posting directions
const (
	PostingDebit  = "DEBIT"
	PostingCredit = "CREDIT"
)

// Account is a ledger account owned by a single user.
type Account struct {
	ID        uint            `gorm:"primarykey" json:"-"`
	Ref       string          `gorm:"size:64;uniqueIndex;not null" json:"ref"`
	OwnerID   string          `gorm:"size:64;index;not null" json:"owner_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	Currency  string          `gorm:"size:3;default:'USD'" json:"currency"`
	Status    string          `gorm:"size:16;default:'active'" json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerPosting is one leg of a transfer mutation. The composite unique index
// makes a replayed mutation collide instead of double-posting.
type LedgerPosting struct {
	ID         uint            `gorm:"primarykey"`
	TransferID string          `gorm:"size:64;not null;uniqueIndex:idx_posting_transfer_direction"`
	Direction  string          `gorm:"size:6;not null;uniqueIndex:idx_posting_transfer_direction"`
	AccountRef string          `gorm:"size:64;index;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt  time.Time
}

// AccountSnapshot is a point-in-time read of an account.
type AccountSnapshot struct {
	Ref      string          `json:"ref"`
	OwnerID  string          `json:"owner_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}
