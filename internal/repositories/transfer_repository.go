package repositories

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// TransferRepository is the durable store of transfer saga records.
type TransferRepository interface {
	// Create inserts a new transfer. A clash on transfer id or idempotency
	// key yields ErrDuplicateTransferID.
	Create(ctx context.Context, t *models.Transfer) error
	// UpdateStatus moves a transfer to status only if its current status is
	// a legal predecessor. Returns the updated record.
	UpdateStatus(ctx context.Context, transferID string, status models.TransferStatus, reason string) (*models.Transfer, error)
	// RecordFraudOutcome attaches the fraud verdict while the check is in
	// progress. Later calls are no-ops.
	RecordFraudOutcome(ctx context.Context, transferID string, outcome *models.FraudCheckOutcome) error
	GetByTransferID(ctx context.Context, transferID string) (*models.Transfer, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transfer, error)
	GetByAccount(ctx context.Context, accountRef string, limit, offset int) ([]models.Transfer, error)
	// ListStale returns transfers in one of statuses not updated since olderThan.
	ListStale(ctx context.Context, statuses []models.TransferStatus, olderThan time.Time, limit int) ([]models.Transfer, error)
}

type transferRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTransferRepository returns a gorm-backed TransferRepository.
func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *transferRepository) Create(ctx context.Context, t *models.Transfer) error {
	if t.Status == "" {
		t.Status = models.TransferStatusPending
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrDuplicateTransferID, err)
		}
		return apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return nil
}

func (r *transferRepository) UpdateStatus(ctx context.Context, transferID string, status models.TransferStatus, reason string) (*models.Transfer, error) {
	preds := statusStrings(status.Predecessors())
	if len(preds) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidTransition, "%s has no predecessors", status)
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": r.now(),
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}

	// Compare-and-set: only one writer can win a given transition.
	res := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("transfer_id = ? AND status IN ?", transferID, preds).
		Updates(updates)
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, res.Error)
	}

	current, err := r.GetByTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return current, apperrors.Wrapf(apperrors.ErrInvalidTransition, "%s -> %s", current.Status, status)
	}
	return current, nil
}

func (r *transferRepository) RecordFraudOutcome(ctx context.Context, transferID string, outcome *models.FraudCheckOutcome) error {
	checkedAt := outcome.Timestamp
	if checkedAt.IsZero() {
		checkedAt = r.now()
	}

	res := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("transfer_id = ? AND status = ? AND fraud_checked = ?",
			transferID, models.TransferStatusFraudCheckInProgress, false).
		Updates(map[string]interface{}{
			"fraud_checked":    true,
			"is_fraud":         outcome.IsFraud,
			"fraud_status":     outcome.Status,
			"fraud_checked_at": checkedAt,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		// Already recorded or moved on; only a missing record is an error.
		_, err := r.GetByTransferID(ctx, transferID)
		return err
	}
	return nil
}

func (r *transferRepository) GetByTransferID(ctx context.Context, transferID string) (*models.Transfer, error) {
	return r.first(ctx, "transfer_id = ?", transferID)
}

func (r *transferRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transfer, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

func (r *transferRepository) GetByAccount(ctx context.Context, accountRef string, limit, offset int) ([]models.Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	var transfers []models.Transfer
	err := r.db.WithContext(ctx).
		Where("from_account = ? OR to_account = ?", accountRef, accountRef).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&transfers).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return transfers, nil
}

func (r *transferRepository) ListStale(ctx context.Context, statuses []models.TransferStatus, olderThan time.Time, limit int) ([]models.Transfer, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var transfers []models.Transfer
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statusStrings(statuses), olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&transfers).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return transfers, nil
}

func (r *transferRepository) first(ctx context.Context, query string, arg interface{}) (*models.Transfer, error) {
	var t models.Transfer
	err := r.db.WithContext(ctx).Where(query, arg).First(&t).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransferNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return &t, nil
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func statusStrings(statuses []models.TransferStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
