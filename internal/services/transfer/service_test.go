package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/models"
	"remit/internal/services/fraud"
	"remit/internal/services/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var requester = models.Requester{UserID: alice, AuthToken: "token"}

func request(amount int64) *models.TransferRequest {
	return &models.TransferRequest{
		FromAccount: "ACC-1",
		ToAccount:   "ACC-2",
		Amount:      decimal.NewFromInt(amount),
		Description: "rent",
	}
}

func TestCreateTransfer_Completed(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, "token").Return(nil).Once()
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, 50*time.Millisecond).Return(approved(), nil).Once()
	h.publisher.On("PublishOutcome", mock.Anything, withStatus(models.TransferStatusCompleted)).Return(nil).Once()

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, models.TransferStatusCompleted, result.Transfer.Status)
	assert.Empty(t, result.Transfer.FailureReason)
	assert.Equal(t, "USD", result.Transfer.Currency)
	assert.True(t, decimal.NewFromInt(4900).Equal(h.balance(t, "ACC-1")))
	assert.True(t, decimal.NewFromInt(100).Equal(h.balance(t, "ACC-2")))
	assert.Equal(t, int64(2), h.postingCount(t))

	stored, err := h.repo.GetByTransferID(context.Background(), result.Transfer.TransferID)
	require.NoError(t, err)
	assert.True(t, stored.FraudChecked)
	assert.False(t, stored.IsFraud)
	assert.Equal(t, result.Transfer.TransferID, stored.IdempotencyKey)

	h.fraud.AssertExpectations(t)
	h.publisher.AssertExpectations(t)
}

func TestCreateTransfer_FraudDeclined(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).Return(declined(), nil)
	h.publisher.On("PublishOutcome", mock.Anything, withStatus(models.TransferStatusDeclined)).Return(nil).Once()

	result, err := h.svc.CreateTransfer(context.Background(), request(2000), requester)
	require.NoError(t, err)

	assert.Equal(t, models.TransferStatusDeclined, result.Transfer.Status)
	assert.Equal(t, models.ReasonFraudDeclined, result.Transfer.FailureReason)
	assert.True(t, decimal.NewFromInt(5000).Equal(h.balance(t, "ACC-1")))
	assert.Equal(t, int64(0), h.postingCount(t))
	h.publisher.AssertExpectations(t)
}

func TestCreateTransfer_ServiceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(false)

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.Equal(t, int64(0), h.transferCount(t))
	h.fraud.AssertNotCalled(t, "RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateTransfer_InsufficientFundsAtMutation(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// Funds leave the account while the fraud check is pending.
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, h.ledger.ApplyTransferMutation(context.Background(), ledger.Mutation{
				TransferID: "drain",
				SourceRef:  "ACC-1",
				DestRef:    "ACC-3",
				Amount:     decimal.NewFromInt(4950),
			}))
		}).
		Return(approved(), nil)
	h.publisher.On("PublishOutcome", mock.Anything, withStatus(models.TransferStatusFailed)).Return(nil).Once()

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)

	assert.Equal(t, models.TransferStatusFailed, result.Transfer.Status)
	assert.Equal(t, models.ReasonInsufficientFunds, result.Transfer.FailureReason)
	assert.True(t, decimal.NewFromInt(50).Equal(h.balance(t, "ACC-1")))
	assert.True(t, decimal.Zero.Equal(h.balance(t, "ACC-2")))
	h.publisher.AssertExpectations(t)
}

func TestCreateTransfer_DuplicateWhilePending(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	published := make(chan struct{})
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-release }).
		Return(approved(), nil).Once()
	h.publisher.On("PublishOutcome", mock.Anything, withStatus(models.TransferStatusCompleted)).
		Run(func(args mock.Arguments) { close(published) }).
		Return(nil).Once()

	req := request(100)
	req.IdempotencyKey = "client-key-1"

	// The first caller gives up while the fraud check is outstanding.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	first, err := h.svc.CreateTransfer(ctx, req, requester)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, models.TransferStatusFraudCheckInProgress, first.Transfer.Status)

	again := request(100)
	again.IdempotencyKey = "client-key-1"
	second, err := h.svc.CreateTransfer(context.Background(), again, requester)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transfer.TransferID, second.Transfer.TransferID)
	assert.Equal(t, models.TransferStatusFraudCheckInProgress, second.Transfer.Status)
	assert.Equal(t, int64(1), h.transferCount(t))

	close(release)
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("outcome was not published")
	}

	got, err := h.repo.GetByTransferID(context.Background(), first.Transfer.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, got.Status)
	// Exactly one debit despite two submissions.
	assert.True(t, decimal.NewFromInt(4900).Equal(h.balance(t, "ACC-1")))
	h.fraud.AssertNumberOfCalls(t, "RequestCheck", 1)
}

func TestCreateTransfer_IdempotencyConflict(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).Return(approved(), nil)
	h.publisher.On("PublishOutcome", mock.Anything, mock.Anything).Return(nil)

	req := request(100)
	req.IdempotencyKey = "client-key-1"
	_, err := h.svc.CreateTransfer(context.Background(), req, requester)
	require.NoError(t, err)

	changed := request(150)
	changed.IdempotencyKey = "client-key-1"
	_, err = h.svc.CreateTransfer(context.Background(), changed, requester)
	assert.ErrorIs(t, err, apperrors.ErrIdempotencyConflict)

	same := request(100)
	same.IdempotencyKey = "client-key-1"
	replayed, err := h.svc.CreateTransfer(context.Background(), same, requester)
	require.NoError(t, err)
	assert.True(t, replayed.Duplicate)
	assert.Equal(t, models.TransferStatusCompleted, replayed.Transfer.Status)
	assert.Equal(t, int64(1), h.transferCount(t))
}

func TestCreateTransfer_FraudCheckTimeout(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.ErrFraudCheckTimeout)
	h.publisher.On("PublishOutcome", mock.Anything, withStatus(models.TransferStatusFailed)).Return(nil).Once()

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)

	assert.Equal(t, models.TransferStatusFailed, result.Transfer.Status)
	assert.Equal(t, models.ReasonFraudCheckTimeout, result.Transfer.FailureReason)
	assert.True(t, decimal.NewFromInt(5000).Equal(h.balance(t, "ACC-1")))
	assert.Equal(t, int64(0), h.postingCount(t))
}

func TestCreateTransfer_FraudRequestFailed(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(apperrors.ErrServiceUnavailable)
	h.publisher.On("PublishOutcome", mock.Anything, withStatus(models.TransferStatusFailed)).Return(nil).Once()

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)

	assert.Equal(t, models.ReasonFraudCheckRequestFailed, result.Transfer.FailureReason)
	h.fraud.AssertNotCalled(t, "AwaitOutcome", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateTransfer_PublishFailureKeepsStatus(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).Return(approved(), nil)
	h.publisher.On("PublishOutcome", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)

	stored, err := h.repo.GetByTransferID(context.Background(), result.Transfer.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, stored.Status)
}

func TestCreateTransfer_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		req       *models.TransferRequest
		requester models.Requester
		wantErr   error
	}{
		{name: "not owner", req: request(100), requester: models.Requester{UserID: bob}, wantErr: apperrors.ErrNotOwner},
		{name: "insufficient funds", req: request(6000), requester: requester, wantErr: apperrors.ErrInsufficientFunds},
		{name: "non-positive amount", req: request(0), requester: requester, wantErr: apperrors.ErrInvalidRequest},
		{
			name:      "same account",
			req:       &models.TransferRequest{FromAccount: "ACC-1", ToAccount: "ACC-1", Amount: decimal.NewFromInt(1)},
			requester: requester,
			wantErr:   apperrors.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fraud.On("IsAvailable").Return(true)

			result, err := h.svc.CreateTransfer(context.Background(), tt.req, tt.requester)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(0), h.transferCount(t))
		})
	}
}

func TestCreateTransfer_CallerGoneBeforeRecord(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.CreateTransfer(ctx, request(100), requester)
	assert.Error(t, err)
	assert.Equal(t, int64(0), h.transferCount(t))
}

func TestCreateTransfer_ConcurrentWaitStops(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).Return(nil, fraud.ErrAlreadyWaiting)

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)

	// The owner of the wait finishes the saga; this run leaves it alone.
	assert.Equal(t, models.TransferStatusFraudCheckInProgress, result.Transfer.Status)
	h.publisher.AssertNotCalled(t, "PublishOutcome", mock.Anything, mock.Anything)
}

func TestGetTransfer(t *testing.T) {
	h := newHarness(t)
	h.fraud.On("IsAvailable").Return(true)
	h.fraud.On("RequestCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.fraud.On("AwaitOutcome", mock.Anything, mock.Anything, mock.Anything).Return(approved(), nil)
	h.publisher.On("PublishOutcome", mock.Anything, mock.Anything).Return(nil)

	result, err := h.svc.CreateTransfer(context.Background(), request(100), requester)
	require.NoError(t, err)
	id := result.Transfer.TransferID

	got, err := h.svc.GetTransfer(context.Background(), id, requester)
	require.NoError(t, err)
	assert.Equal(t, id, got.TransferID)

	_, err = h.svc.GetTransfer(context.Background(), id, models.Requester{UserID: bob})
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = h.svc.GetTransfer(context.Background(), "missing", requester)
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)

	list, err := h.svc.ListAccountTransfers(context.Background(), "ACC-1", requester, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = h.svc.ListAccountTransfers(context.Background(), "ACC-2", requester, 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	bobs, err := h.svc.ListAccountTransfers(context.Background(), "ACC-2", models.Requester{UserID: bob}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

func TestRequestHash(t *testing.T) {
	a := request(100)
	b := request(100)
	b.Amount = decimal.RequireFromString("100.00")
	assert.Equal(t, requestHash(a, alice), requestHash(b, alice))

	b.Description = "  rent "
	assert.Equal(t, requestHash(a, alice), requestHash(b, alice))

	assert.NotEqual(t, requestHash(a, alice), requestHash(a, bob))
	assert.NotEqual(t, requestHash(a, alice), requestHash(request(101), alice))
}
