package fraud

import (
	"context"
	"time"

	"remit/internal/models"

	"github.com/shopspring/decimal"
)

// Gateway requests fraud checks and waits for their verdicts.
type Gateway interface {
	// RequestCheck publishes a check request and returns without waiting.
	RequestCheck(ctx context.Context, transferID string, amount decimal.Decimal, authToken string) error
	// AwaitOutcome blocks until the verdict for transferID arrives or timeout
	// elapses (ErrFraudCheckTimeout). One wait per transfer id at a time.
	AwaitOutcome(ctx context.Context, transferID string, timeout time.Duration) (*models.FraudCheckOutcome, error)
	// LookupOutcome reads a stored verdict without waiting. Returns nil, nil
	// when none exists.
	LookupOutcome(ctx context.Context, transferID string) (*models.FraudCheckOutcome, error)
	// IsAvailable reports whether check requests can be published.
	IsAvailable() bool
	// HandleOutcome consumes one verdict message from the broker.
	HandleOutcome(ctx context.Context, body []byte) error
}

// ResultCache stores verdicts and de-duplication markers.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// DetectorMetrics counts what the detector worker does.
type DetectorMetrics interface {
	MessageProcessed()
	FraudDetected()
	ProcessingError()
	DuplicateMessage()
}
