// Package notification publishes transfer outcome events.
package notification

import (
	"context"
	"fmt"
	"time"

	"remit/internal/messaging"
	"remit/internal/models"
	"remit/internal/utils/retry"

	"go.uber.org/zap"
)

// Service publishes one outcome event per terminal transfer, plus balance
// updates for completed ones. Delivery is at-least-once; consumers
// de-duplicate on transfer id and status.
type Service struct {
	publisher messaging.Publisher
	policy    *retry.Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new notification service.
func NewService(publisher messaging.Publisher, policy *retry.Policy, logger *zap.Logger) *Service {
	return &Service{
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PublishOutcome sends the outcome of a terminal transfer.
func (s *Service) PublishOutcome(ctx context.Context, t *models.Transfer) error {
	if !t.Status.IsTerminal() {
		return fmt.Errorf("transfer %s is not terminal: %s", t.TransferID, t.Status)
	}
	at := s.now()

	event := models.NewOutcomeEvent(t, at)
	if err := s.publish(ctx, event.EventType, event); err != nil {
		return fmt.Errorf("publish %s for %s: %w", event.EventType, t.TransferID, err)
	}
	s.logger.Info("transfer outcome published",
		zap.String("transfer_id", t.TransferID),
		zap.String("status", string(t.Status)),
		zap.String("reason", t.FailureReason))

	if t.Status != models.TransferStatusCompleted {
		return nil
	}

	updates := []models.BalanceUpdateEvent{
		{EventType: models.EventBalanceUpdated, TransferID: t.TransferID, AccountRef: t.FromAccount, Delta: t.Amount.Neg(), Timestamp: at},
		{EventType: models.EventBalanceUpdated, TransferID: t.TransferID, AccountRef: t.ToAccount, Delta: t.Amount, Timestamp: at},
	}
	for _, u := range updates {
		if err := s.publish(ctx, u.EventType, u); err != nil {
			// The outcome is out; balance updates are advisory.
			s.logger.Warn("balance update publish failed",
				zap.String("transfer_id", t.TransferID),
				zap.String("account", u.AccountRef),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) error {
	return s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := s.publisher.Publish(ctx, messaging.ExchangeTransferEvents, routingKey, body)
		if err != nil && attempt > 1 {
			s.logger.Debug("publish retry failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
}
