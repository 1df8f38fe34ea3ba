package transfer

import (
	"context"

	apperrors "remit/internal/errors"
	"remit/internal/models"
	"remit/internal/services/fraud"
	"remit/internal/services/ledger"
	"remit/internal/utils/retry"

	"go.uber.org/zap"
)

// run drives a freshly created transfer to a terminal state, or as far as
// it can get. It returns the latest known record.
func (s *service) run(ctx context.Context, t *models.Transfer, authToken string) *models.Transfer {
	t, ok := s.transition(ctx, t, models.TransferStatusFraudCheckInProgress, "")
	if !ok {
		return t
	}

	if err := s.fraud.RequestCheck(ctx, t.TransferID, t.Amount, authToken); err != nil {
		s.logger.Warn("fraud check request failed", zap.String("transfer_id", t.TransferID), zap.Error(err))
		return s.finish(ctx, t, models.TransferStatusFailed, models.ReasonFraudCheckRequestFailed)
	}

	started := s.now()
	outcome, err := s.fraud.AwaitOutcome(ctx, t.TransferID, s.cfg.FraudCheckTimeout)
	s.metrics.RecordFraudWait(s.now().Sub(started))
	if err != nil {
		if apperrors.Is(err, fraud.ErrAlreadyWaiting) {
			// Another run in this process owns the wait.
			return s.current(ctx, t)
		}
		s.logger.Warn("fraud check not answered", zap.String("transfer_id", t.TransferID), zap.Error(err))
		return s.finish(ctx, t, models.TransferStatusFailed, models.ReasonFraudCheckTimeout)
	}

	return s.applyVerdict(ctx, t, outcome)
}

// applyVerdict records the fraud outcome and declines or approves. The
// ledger is only touched after approval.
func (s *service) applyVerdict(ctx context.Context, t *models.Transfer, outcome *models.FraudCheckOutcome) *models.Transfer {
	if err := s.repo.RecordFraudOutcome(ctx, t.TransferID, outcome); err != nil {
		s.logger.Warn("fraud outcome not recorded", zap.String("transfer_id", t.TransferID), zap.Error(err))
	}

	if outcome.IsFraud {
		return s.finish(ctx, t, models.TransferStatusDeclined, models.ReasonFraudDeclined)
	}

	t, ok := s.transition(ctx, t, models.TransferStatusApproved, "")
	if !ok {
		return t
	}
	return s.settle(ctx, t)
}

// settle applies the ledger mutation for an approved transfer and records the
// terminal state. Transient ledger errors are retried; the mutation is
// idempotent on transfer id.
func (s *service) settle(ctx context.Context, t *models.Transfer) *models.Transfer {
	mutation := ledger.Mutation{
		TransferID: t.TransferID,
		SourceRef:  t.FromAccount,
		DestRef:    t.ToAccount,
		Amount:     t.Amount,
	}

	err := s.cfg.MutationPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := s.ledger.ApplyTransferMutation(ctx, mutation)
		switch {
		case err == nil:
			s.metrics.RecordMutationAttempt(MutationApplied)
			return nil
		case isLedgerRejection(err):
			s.metrics.RecordMutationAttempt(MutationRejected)
			return retry.Permanent(err)
		default:
			s.metrics.RecordMutationAttempt(MutationError)
			s.logger.Warn("ledger mutation attempt failed",
				zap.String("transfer_id", t.TransferID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
	})

	switch {
	case err == nil:
		return s.finish(ctx, t, models.TransferStatusCompleted, "")
	case apperrors.Is(err, apperrors.ErrInsufficientFunds):
		return s.finish(ctx, t, models.TransferStatusFailed, models.ReasonInsufficientFunds)
	case apperrors.Is(err, apperrors.ErrAccountNotFound):
		return s.finish(ctx, t, models.TransferStatusFailed, models.ReasonAccountNotFound)
	default:
		s.logger.Error("ledger mutation failed", zap.String("transfer_id", t.TransferID), zap.Error(err))
		return s.finish(ctx, t, models.TransferStatusFailed, models.ReasonLedgerMutationFailed)
	}
}

// finish moves t to a terminal status and publishes the outcome. Publishing
// failures are logged and never revert the status.
func (s *service) finish(ctx context.Context, t *models.Transfer, status models.TransferStatus, reason string) *models.Transfer {
	updated, ok := s.transition(ctx, t, status, reason)
	if !ok {
		return updated
	}

	if err := s.publisher.PublishOutcome(ctx, updated); err != nil {
		s.metrics.RecordPublishFailure()
		s.logger.Error("outcome publish failed",
			zap.String("transfer_id", updated.TransferID),
			zap.String("status", string(updated.Status)),
			zap.Error(err))
	}
	return updated
}

// transition performs one compare-and-set status change. It reports false
// when the saga must stop: another actor moved the record first, or the
// store stayed unavailable.
func (s *service) transition(ctx context.Context, t *models.Transfer, status models.TransferStatus, reason string) (*models.Transfer, bool) {
	var (
		updated     *models.Transfer
		unconfirmed bool
	)
	err := s.cfg.PersistPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		updated, err = s.repo.UpdateStatus(ctx, t.TransferID, status, reason)
		switch {
		case err == nil:
			return nil
		case apperrors.Is(err, apperrors.ErrPersistence):
			// The write may have committed before the error surfaced.
			unconfirmed = true
			return err
		case unconfirmed && apperrors.Is(err, apperrors.ErrInvalidTransition) && isOwnWrite(updated, status, reason):
			return nil
		default:
			return retry.Permanent(err)
		}
	})

	log := s.logger.With(
		zap.String("transfer_id", t.TransferID),
		zap.String("status", string(status)),
		zap.String("reason", reason))

	switch {
	case err == nil:
		s.metrics.RecordTransfer(status)
		log.Info("transfer status changed", zap.String("from", string(t.Status)))
		return updated, true
	case apperrors.Is(err, apperrors.ErrInvalidTransition) && updated != nil:
		log.Info("transfer advanced elsewhere", zap.String("current", string(updated.Status)))
		return updated, false
	default:
		log.Error("transfer status update failed", zap.Error(err))
		return t, false
	}
}

// isOwnWrite reports whether current already holds the change a previous,
// unconfirmed attempt tried to make.
func isOwnWrite(current *models.Transfer, status models.TransferStatus, reason string) bool {
	return current != nil && current.Status == status && (reason == "" || current.FailureReason == reason)
}

// current re-reads t, falling back to the copy in hand.
func (s *service) current(ctx context.Context, t *models.Transfer) *models.Transfer {
	fresh, err := s.repo.GetByTransferID(ctx, t.TransferID)
	if err != nil {
		return t
	}
	return fresh
}

func isLedgerRejection(err error) bool {
	return apperrors.Is(err, apperrors.ErrInsufficientFunds) ||
		apperrors.Is(err, apperrors.ErrAccountNotFound) ||
		apperrors.Is(err, apperrors.ErrMutationConflict) ||
		apperrors.Is(err, apperrors.ErrInvalidRequest)
}
