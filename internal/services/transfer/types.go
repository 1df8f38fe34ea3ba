package transfer

import (
	"time"

	"remit/internal/models"
	"remit/internal/repositories"
	"remit/internal/services/ledger"
	"remit/internal/utils/retry"

	"go.uber.org/zap"
)

// TransferResult is what CreateTransfer hands back. Duplicate is set when
// the request replayed an earlier submission.
type TransferResult struct {
	Transfer  *models.Transfer
	Duplicate bool
}

// Config tunes the saga.
type Config struct {
	FraudCheckTimeout  time.Duration
	ReconcileGrace     time.Duration
	ReconcileBatchSize int
	// MutationPolicy bounds ledger mutation retries.
	MutationPolicy *retry.Policy
	// PersistPolicy bounds status update retries.
	PersistPolicy *retry.Policy
}

// Dependencies are the saga's collaborators.
type Dependencies struct {
	Repo      repositories.TransferRepository
	Validator RequestValidator
	Ledger    ledger.Client
	Fraud     FraudGateway
	Publisher OutcomePublisher
	Metrics   MetricsCollector
	Logger    *zap.Logger
}
