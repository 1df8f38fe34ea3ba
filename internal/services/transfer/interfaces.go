package transfer

import (
	"context"
	"time"

	"remit/internal/models"
	"remit/internal/validation"

	"github.com/shopspring/decimal"
)

// Service runs transfer sagas.
type Service interface {
	// CreateTransfer validates req, records it and drives the saga. It waits
	// for a terminal state unless ctx ends first, in which case it returns
	// the current record and the saga carries on in the background.
	CreateTransfer(ctx context.Context, req *models.TransferRequest, requester models.Requester) (*TransferResult, error)
	GetTransfer(ctx context.Context, transferID string, requester models.Requester) (*models.Transfer, error)
	ListAccountTransfers(ctx context.Context, accountRef string, requester models.Requester, limit, offset int) ([]models.Transfer, error)
	// Reconcile finishes sagas abandoned mid-flight and returns how many it
	// moved.
	Reconcile(ctx context.Context) (int, error)
}

// RequestValidator resolves and checks a transfer request.
type RequestValidator interface {
	Validate(ctx context.Context, req *models.TransferRequest, requester models.Requester) (*validation.ResolvedTransfer, error)
}

// FraudGateway is the part of the fraud gateway the saga drives.
type FraudGateway interface {
	RequestCheck(ctx context.Context, transferID string, amount decimal.Decimal, authToken string) error
	AwaitOutcome(ctx context.Context, transferID string, timeout time.Duration) (*models.FraudCheckOutcome, error)
	LookupOutcome(ctx context.Context, transferID string) (*models.FraudCheckOutcome, error)
	IsAvailable() bool
}

// OutcomePublisher announces terminal transfers.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, t *models.Transfer) error
}

// MetricsCollector defines the metrics interface
type MetricsCollector interface {
	RecordTransfer(status models.TransferStatus)
	RecordFraudWait(d time.Duration)
	RecordMutationAttempt(result string)
	RecordPublishFailure()
	RecordReconciled(status models.TransferStatus)
}
