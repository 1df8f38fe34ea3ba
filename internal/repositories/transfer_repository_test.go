package repositories

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	return db
}

func newTransfer(id string) *models.Transfer {
	return &models.Transfer{
		TransferID:     id,
		IdempotencyKey: "key-" + id,
		RequestHash:    "hash",
		RequesterID:    "user-1",
		FromAccount:    "ACC-1",
		ToAccount:      "ACC-2",
		Amount:         decimal.RequireFromString("100.00"),
		Currency:       "USD",
	}
}

func TestTransferRepository_Create(t *testing.T) {
	repo := NewTransferRepository(newTestDB(t))
	ctx := context.Background()

	tr := newTransfer("t-1")
	require.NoError(t, repo.Create(ctx, tr))
	assert.Equal(t, models.TransferStatusPending, tr.Status)

	got, err := repo.GetByTransferID(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(got.Amount))

	t.Run("duplicate transfer id", func(t *testing.T) {
		dup := newTransfer("t-1")
		dup.IdempotencyKey = "other"
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateTransferID)
	})

	t.Run("duplicate idempotency key", func(t *testing.T) {
		dup := newTransfer("t-2")
		dup.IdempotencyKey = "key-t-1"
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateTransferID)
	})
}

func TestTransferRepository_UpdateStatus(t *testing.T) {
	repo := NewTransferRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTransfer("t-1")))

	tests := []struct {
		name    string
		id      string
		status  models.TransferStatus
		reason  string
		wantErr error
		want    models.TransferStatus
	}{
		{name: "pending to fraud check", id: "t-1", status: models.TransferStatusFraudCheckInProgress, want: models.TransferStatusFraudCheckInProgress},
		{name: "skip approval", id: "t-1", status: models.TransferStatusCompleted, wantErr: apperrors.ErrInvalidTransition, want: models.TransferStatusFraudCheckInProgress},
		{name: "approve", id: "t-1", status: models.TransferStatusApproved, want: models.TransferStatusApproved},
		{name: "fail with reason", id: "t-1", status: models.TransferStatusFailed, reason: models.ReasonInsufficientFunds, want: models.TransferStatusFailed},
		{name: "terminal is final", id: "t-1", status: models.TransferStatusCompleted, wantErr: apperrors.ErrInvalidTransition, want: models.TransferStatusFailed},
		{name: "back to pending", id: "t-1", status: models.TransferStatusPending, wantErr: apperrors.ErrInvalidTransition},
		{name: "unknown transfer", id: "missing", status: models.TransferStatusApproved, wantErr: apperrors.ErrTransferNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.UpdateStatus(ctx, tt.id, tt.status, tt.reason)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.want != "" {
				require.NotNil(t, got)
				assert.Equal(t, tt.want, got.Status)
			}
		})
	}

	final, err := repo.GetByTransferID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonInsufficientFunds, final.FailureReason)
}

func TestTransferRepository_UpdateStatusConcurrent(t *testing.T) {
	repo := NewTransferRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTransfer("t-1")))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.UpdateStatus(ctx, "t-1", models.TransferStatusFraudCheckInProgress, ""); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestTransferRepository_RecordFraudOutcome(t *testing.T) {
	repo := NewTransferRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTransfer("t-1")))

	outcome := &models.FraudCheckOutcome{
		TransferID: "t-1",
		IsFraud:    true,
		Status:     models.FraudStatusDeclined,
		Amount:     decimal.NewFromInt(100),
		Timestamp:  time.Now().UTC(),
	}

	// Not yet in progress: ignored.
	require.NoError(t, repo.RecordFraudOutcome(ctx, "t-1", outcome))
	got, err := repo.GetByTransferID(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, got.FraudChecked)

	_, err = repo.UpdateStatus(ctx, "t-1", models.TransferStatusFraudCheckInProgress, "")
	require.NoError(t, err)
	require.NoError(t, repo.RecordFraudOutcome(ctx, "t-1", outcome))

	// A second delivery with a different verdict does not overwrite.
	clean := *outcome
	clean.IsFraud = false
	clean.Status = models.FraudStatusApproved
	require.NoError(t, repo.RecordFraudOutcome(ctx, "t-1", &clean))

	got, err = repo.GetByTransferID(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, got.FraudChecked)
	assert.True(t, got.IsFraud)
	assert.Equal(t, models.FraudStatusDeclined, got.FraudStatus)
	assert.NotNil(t, got.FraudCheckedAt)

	err = repo.RecordFraudOutcome(ctx, "missing", outcome)
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)
}

func TestTransferRepository_Queries(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransferRepository(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, newTransfer(fmt.Sprintf("t-%d", i))))
	}
	other := newTransfer("t-4")
	other.FromAccount, other.ToAccount = "ACC-3", "ACC-4"
	require.NoError(t, repo.Create(ctx, other))

	got, err := repo.GetByIdempotencyKey(ctx, "key-t-2")
	require.NoError(t, err)
	assert.Equal(t, "t-2", got.TransferID)

	_, err = repo.GetByIdempotencyKey(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)

	list, err := repo.GetByAccount(ctx, "ACC-2", 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	page, err := repo.GetByAccount(ctx, "ACC-2", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	_, err = repo.UpdateStatus(ctx, "t-1", models.TransferStatusFraudCheckInProgress, "")
	require.NoError(t, err)

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Transfer{}).
		Where("transfer_id IN ?", []string{"t-1", "t-2"}).
		UpdateColumn("updated_at", old).Error)

	stale, err := repo.ListStale(ctx,
		[]models.TransferStatus{models.TransferStatusFraudCheckInProgress, models.TransferStatusPending},
		time.Now().UTC().Add(-time.Minute), 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		ids = append(ids, s.TransferID)
	}
	assert.ElementsMatch(t, []string{"t-1", "t-2"}, ids)

	none, err := repo.ListStale(ctx, nil, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
