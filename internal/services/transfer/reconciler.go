package transfer

import (
	"context"
	"fmt"
	"time"

	"remit/internal/models"

	"go.uber.org/zap"
)

// Reconcile sweeps transfers left behind by a crashed or interrupted saga:
//   - PENDING past the grace period fails with SAGA_INTERRUPTED;
//   - FRAUD_CHECK_IN_PROGRESS past the fraud timeout plus grace resumes from
//     the cached verdict, or fails with FRAUD_CHECK_TIMEOUT when none exists;
//   - APPROVED past the grace period re-issues the idempotent ledger mutation.
func (s *service) Reconcile(ctx context.Context) (int, error) {
	now := s.now()
	moved := 0

	stuck, err := s.repo.ListStale(ctx,
		[]models.TransferStatus{models.TransferStatusFraudCheckInProgress},
		now.Add(-(s.cfg.FraudCheckTimeout + s.cfg.ReconcileGrace)),
		s.cfg.ReconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list transfers awaiting fraud check: %w", err)
	}
	for i := range stuck {
		if ctx.Err() != nil {
			return moved, nil
		}
		if s.reconcileOne(ctx, &stuck[i]) {
			moved++
		}
	}

	stale, err := s.repo.ListStale(ctx,
		[]models.TransferStatus{models.TransferStatusPending, models.TransferStatusApproved},
		now.Add(-s.cfg.ReconcileGrace),
		s.cfg.ReconcileBatchSize)
	if err != nil {
		return moved, fmt.Errorf("list stale transfers: %w", err)
	}
	for i := range stale {
		if ctx.Err() != nil {
			return moved, nil
		}
		if s.reconcileOne(ctx, &stale[i]) {
			moved++
		}
	}

	return moved, nil
}

func (s *service) reconcileOne(ctx context.Context, t *models.Transfer) bool {
	// A started item is carried through even if shutdown begins.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("transfer_id", t.TransferID), zap.String("status", string(t.Status)))
	log.Info("reconciling stale transfer", zap.Time("updated_at", t.UpdatedAt))

	var final *models.Transfer
	switch t.Status {
	case models.TransferStatusPending:
		final = s.finish(ctx, t, models.TransferStatusFailed, models.ReasonSagaInterrupted)
	case models.TransferStatusFraudCheckInProgress:
		outcome, err := s.fraud.LookupOutcome(ctx, t.TransferID)
		if err != nil {
			log.Warn("fraud outcome lookup failed, will retry next sweep", zap.Error(err))
			return false
		}
		if outcome == nil {
			final = s.finish(ctx, t, models.TransferStatusFailed, models.ReasonFraudCheckTimeout)
		} else {
			final = s.applyVerdict(ctx, t, outcome)
		}
	case models.TransferStatusApproved:
		final = s.settle(ctx, t)
	default:
		return false
	}

	if final.Status == t.Status {
		return false
	}
	s.metrics.RecordReconciled(final.Status)
	return true
}

// Reconciler runs Reconcile on a fixed interval.
type Reconciler struct {
	svc      Service
	interval time.Duration
	logger   *zap.Logger
}

func NewReconciler(svc Service, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately, then every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		moved, err := r.svc.Reconcile(ctx)
		if err != nil {
			r.logger.Error("reconcile sweep failed", zap.Error(err))
		} else if moved > 0 {
			r.logger.Info("reconcile sweep finished", zap.Int("moved", moved))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
