// Package transfer orchestrates the money-transfer saga: validation, fraud
// check, ledger mutation and outcome publication, with a reconciler for
// sagas interrupted mid-flight.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/models"
	"remit/internal/repositories"
	"remit/internal/services/ledger"
	"remit/internal/utils/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// service implements the transfer Service interface.
type service struct {
	repo      repositories.TransferRepository
	validator RequestValidator
	ledger    ledger.Client
	fraud     FraudGateway
	publisher OutcomePublisher
	metrics   MetricsCollector
	logger    *zap.Logger
	cfg       Config

	now   func() time.Time
	newID func() string
}

// NewService creates a new transfer service instance.
func NewService(deps Dependencies, cfg Config) Service {
	if cfg.FraudCheckTimeout <= 0 {
		cfg.FraudCheckTimeout = DefaultFraudCheckTimeout
	}
	if cfg.ReconcileGrace <= 0 {
		cfg.ReconcileGrace = DefaultReconcileGrace
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = DefaultReconcileBatchSize
	}
	if cfg.MutationPolicy == nil {
		cfg.MutationPolicy = retry.New(3, 100*time.Millisecond, 2*time.Second)
	}
	if cfg.PersistPolicy == nil {
		cfg.PersistPolicy = retry.New(3, 50*time.Millisecond, time.Second)
	}
	if deps.Metrics == nil {
		deps.Metrics = &NoopMetricsCollector{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &service{
		repo:      deps.Repo,
		validator: deps.Validator,
		ledger:    deps.Ledger,
		fraud:     deps.Fraud,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (s *service) CreateTransfer(ctx context.Context, req *models.TransferRequest, requester models.Requester) (*TransferResult, error) {
	hash := requestHash(req, requester.UserID)

	if req.IdempotencyKey != "" {
		result, err := s.replay(ctx, req.IdempotencyKey, hash)
		if result != nil || err != nil {
			return result, err
		}
	}

	resolved, err := s.validator.Validate(ctx, req, requester)
	if err != nil {
		return nil, err
	}
	if !s.fraud.IsAvailable() {
		return nil, apperrors.ErrServiceUnavailable
	}
	// Nothing is recorded for a caller that already gave up.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transferID := s.newID()
	key := req.IdempotencyKey
	if key == "" {
		key = transferID
	}
	t := &models.Transfer{
		TransferID:     transferID,
		IdempotencyKey: key,
		RequestHash:    hash,
		RequesterID:    requester.UserID,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Currency:       resolved.Source.Currency,
		Description:    strings.TrimSpace(req.Description),
		Status:         models.TransferStatusPending,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicateTransferID) && req.IdempotencyKey != "" {
			// An identical submission won the race to the unique index.
			if result, rerr := s.replay(ctx, req.IdempotencyKey, hash); result != nil || rerr != nil {
				return result, rerr
			}
		}
		return nil, err
	}
	s.metrics.RecordTransfer(models.TransferStatusPending)
	s.logger.Info("transfer accepted",
		zap.String("transfer_id", t.TransferID),
		zap.String("from", t.FromAccount),
		zap.String("to", t.ToAccount),
		zap.String("amount", t.Amount.String()))

	// The saga outlives the caller once the record exists.
	sagaCtx := context.WithoutCancel(ctx)
	done := make(chan *models.Transfer, 1)
	go func() {
		done <- s.run(sagaCtx, t, requester.AuthToken)
	}()

	select {
	case final := <-done:
		return &TransferResult{Transfer: final}, nil
	case <-ctx.Done():
		current, err := s.repo.GetByTransferID(sagaCtx, t.TransferID)
		if err != nil {
			current = t
		}
		return &TransferResult{Transfer: current}, nil
	}
}

func (s *service) GetTransfer(ctx context.Context, transferID string, requester models.Requester) (*models.Transfer, error) {
	t, err := s.repo.GetByTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.RequesterID != requester.UserID {
		return nil, apperrors.Wrapf(apperrors.ErrNotOwner, "transfer %s", transferID)
	}
	return t, nil
}

func (s *service) ListAccountTransfers(ctx context.Context, accountRef string, requester models.Requester, limit, offset int) ([]models.Transfer, error) {
	account, err := s.ledger.GetAccountSnapshot(ctx, accountRef)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != requester.UserID {
		return nil, apperrors.Wrapf(apperrors.ErrNotOwner, "account %s", accountRef)
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.GetByAccount(ctx, accountRef, limit, offset)
}

// replay returns the transfer already recorded under key, nil when there is
// none, or ErrIdempotencyConflict when key was used for a different request.
func (s *service) replay(ctx context.Context, key, hash string) (*TransferResult, error) {
	existing, err := s.repo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrTransferNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if existing.RequestHash != hash {
		return nil, apperrors.Wrapf(apperrors.ErrIdempotencyConflict, "key %s", key)
	}
	s.logger.Info("duplicate transfer request",
		zap.String("transfer_id", existing.TransferID),
		zap.String("status", string(existing.Status)))
	return &TransferResult{Transfer: existing, Duplicate: true}, nil
}

// requestHash fingerprints the fields that make two requests the same.
func requestHash(req *models.TransferRequest, requesterID string) string {
	h := sha256.New()
	for _, part := range []string{
		requesterID,
		req.FromAccount,
		req.ToAccount,
		req.Amount.StringFixed(2),
		strings.TrimSpace(req.Description),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
