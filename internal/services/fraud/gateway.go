// Package fraud requests fraud checks over the broker and correlates the
// asynchronous verdicts, and holds the detector rule run by the worker.
package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/messaging"
	"remit/internal/models"
	"remit/internal/repositories/cache"
	"remit/internal/utils/retry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type gateway struct {
	publisher messaging.Publisher
	cache     ResultCache
	waiters   *Correlator[string, *models.FraudCheckOutcome]
	poll      *retry.Policy
	resultTTL time.Duration
	logger    *zap.Logger
}

// GatewayConfig tunes result caching and cache polling.
type GatewayConfig struct {
	ResultTTL     time.Duration
	PollBaseDelay time.Duration
	PollMaxDelay  time.Duration
}

// NewGateway returns a Gateway publishing through publisher and polling
// resultCache for verdicts delivered to other instances.
func NewGateway(publisher messaging.Publisher, resultCache ResultCache, cfg GatewayConfig, logger *zap.Logger) Gateway {
	if cfg.PollBaseDelay <= 0 {
		cfg.PollBaseDelay = 50 * time.Millisecond
	}
	if cfg.PollMaxDelay <= 0 {
		cfg.PollMaxDelay = time.Second
	}
	return &gateway{
		publisher: publisher,
		cache:     resultCache,
		waiters:   NewCorrelator[string, *models.FraudCheckOutcome](),
		poll:      retry.New(0, cfg.PollBaseDelay, cfg.PollMaxDelay),
		resultTTL: cfg.ResultTTL,
		logger:    logger,
	}
}

func (g *gateway) IsAvailable() bool {
	return g.publisher.IsConnected()
}

func (g *gateway) RequestCheck(ctx context.Context, transferID string, amount decimal.Decimal, authToken string) error {
	if !g.IsAvailable() {
		return apperrors.ErrServiceUnavailable
	}
	req := models.FraudCheckRequest{
		TransferID: transferID,
		Amount:     amount,
		AuthToken:  authToken,
	}
	if err := g.publisher.Publish(ctx, "", messaging.QueueCheckFraud, req); err != nil {
		return apperrors.Wrap(apperrors.ErrServiceUnavailable, err)
	}
	g.logger.Debug("fraud check requested", zap.String("transfer_id", transferID))
	return nil
}

func (g *gateway) AwaitOutcome(ctx context.Context, transferID string, timeout time.Duration) (*models.FraudCheckOutcome, error) {
	// Register before the first cache read so a verdict arriving in between
	// is not missed.
	fut, err := g.waiters.Register(transferID)
	if err != nil {
		return nil, err
	}
	defer g.waiters.Forget(transferID, fut)

	if outcome := g.cached(ctx, transferID); outcome != nil {
		return outcome, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for attempt := 2; ; attempt++ {
		tick := time.NewTimer(g.poll.Backoff(attempt))
		select {
		case <-fut.Done():
			tick.Stop()
			return fut.Value(), nil
		case <-ctx.Done():
			tick.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			tick.Stop()
			if outcome := g.cached(ctx, transferID); outcome != nil {
				return outcome, nil
			}
			return nil, apperrors.Wrapf(apperrors.ErrFraudCheckTimeout, "transfer %s after %s", transferID, timeout)
		case <-tick.C:
			if outcome := g.cached(ctx, transferID); outcome != nil {
				return outcome, nil
			}
		}
	}
}

func (g *gateway) LookupOutcome(ctx context.Context, transferID string) (*models.FraudCheckOutcome, error) {
	var outcome models.FraudCheckOutcome
	found, err := g.cache.Get(ctx, cache.FraudOutcomeKey(transferID), &outcome)
	if err != nil {
		return nil, fmt.Errorf("lookup fraud outcome: %w", err)
	}
	if !found || !outcome.Decided() {
		return nil, nil
	}
	return &outcome, nil
}

func (g *gateway) HandleOutcome(ctx context.Context, body []byte) error {
	var outcome models.FraudCheckOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return retry.Permanent(fmt.Errorf("decode fraud outcome: %w", err))
	}
	if outcome.TransferID == "" || !outcome.Decided() {
		return retry.Permanent(errors.New("fraud outcome without transfer id or status"))
	}

	// First recorded verdict wins; a redelivery resolves to the stored one.
	stored, err := g.cache.SetNX(ctx, cache.FraudOutcomeKey(outcome.TransferID), outcome, g.resultTTL)
	if err != nil {
		g.logger.Warn("fraud outcome write-through failed",
			zap.String("transfer_id", outcome.TransferID), zap.Error(err))
	} else if !stored {
		if existing := g.cached(ctx, outcome.TransferID); existing != nil {
			outcome = *existing
		}
	}

	if g.waiters.Resolve(outcome.TransferID, &outcome) {
		g.logger.Debug("fraud outcome delivered",
			zap.String("transfer_id", outcome.TransferID),
			zap.Bool("is_fraud", outcome.IsFraud))
	}
	return nil
}

// cached is LookupOutcome with cache errors logged and treated as a miss.
func (g *gateway) cached(ctx context.Context, transferID string) *models.FraudCheckOutcome {
	outcome, err := g.LookupOutcome(ctx, transferID)
	if err != nil {
		g.logger.Warn("fraud result cache unavailable", zap.String("transfer_id", transferID), zap.Error(err))
		return nil
	}
	return outcome
}
