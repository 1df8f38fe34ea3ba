package ledger

import (
	"context"

	"remit/internal/models"

	"github.com/shopspring/decimal"
)

// Mutation debits SourceRef and credits DestRef by Amount. TransferID is the
// idempotency key: applying the same mutation twice changes balances once.
type Mutation struct {
	TransferID string
	SourceRef  string
	DestRef    string
	Amount     decimal.Decimal
}

// Client is what the transfer saga needs from the ledger.
type Client interface {
	// GetAccountSnapshot returns ErrAccountNotFound for unknown refs.
	GetAccountSnapshot(ctx context.Context, accountRef string) (*models.AccountSnapshot, error)
	// ApplyTransferMutation returns nil on success or replay,
	// ErrInsufficientFunds, ErrAccountNotFound, ErrMutationConflict, or a
	// retryable ErrPersistence.
	ApplyTransferMutation(ctx context.Context, m Mutation) error
}

// Service adds account administration to Client.
type Service interface {
	Client
	OpenAccount(ctx context.Context, account *models.Account) error
	GetPostings(ctx context.Context, transferID string) ([]models.LedgerPosting, error)
}
