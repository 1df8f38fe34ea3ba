package transfer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"remit/internal/models"
	"remit/internal/repositories"
	"remit/internal/services/ledger"
	"remit/internal/utils/retry"
	"remit/internal/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MockFraudGateway struct {
	mock.Mock
}

func (m *MockFraudGateway) RequestCheck(ctx context.Context, transferID string, amount decimal.Decimal, authToken string) error {
	args := m.Called(ctx, transferID, amount, authToken)
	return args.Error(0)
}

func (m *MockFraudGateway) AwaitOutcome(ctx context.Context, transferID string, timeout time.Duration) (*models.FraudCheckOutcome, error) {
	args := m.Called(ctx, transferID, timeout)
	if o, ok := args.Get(0).(*models.FraudCheckOutcome); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFraudGateway) LookupOutcome(ctx context.Context, transferID string) (*models.FraudCheckOutcome, error) {
	args := m.Called(ctx, transferID)
	if o, ok := args.Get(0).(*models.FraudCheckOutcome); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFraudGateway) IsAvailable() bool {
	return m.Called().Bool(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOutcome(ctx context.Context, t *models.Transfer) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) GetAccountSnapshot(ctx context.Context, accountRef string) (*models.AccountSnapshot, error) {
	args := m.Called(ctx, accountRef)
	if a, ok := args.Get(0).(*models.AccountSnapshot); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerClient) ApplyTransferMutation(ctx context.Context, mut ledger.Mutation) error {
	args := m.Called(ctx, mut)
	return args.Error(0)
}

type harness struct {
	svc       Service
	db        *gorm.DB
	repo      repositories.TransferRepository
	ledger    ledger.Service
	fraud     *MockFraudGateway
	publisher *MockPublisher
}

const (
	alice = "alice"
	bob   = "bob"
)

// newHarness wires a service over sqlite and a real ledger. Options may
// replace dependencies before the service is built.
func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
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
	require.NoError(t, repositories.AutoMigrate(db))

	ledgerSvc := ledger.NewService(db, zap.NewNop())
	for _, a := range []models.Account{
		{Ref: "ACC-1", OwnerID: alice, Balance: decimal.NewFromInt(5000), Currency: "USD"},
		{Ref: "ACC-2", OwnerID: bob, Balance: decimal.Zero, Currency: "USD"},
		{Ref: "ACC-3", OwnerID: alice, Balance: decimal.Zero, Currency: "USD"},
	} {
		a := a
		require.NoError(t, ledgerSvc.OpenAccount(context.Background(), &a))
	}

	h := &harness{
		db:        db,
		repo:      repositories.NewTransferRepository(db),
		ledger:    ledgerSvc,
		fraud:     new(MockFraudGateway),
		publisher: new(MockPublisher),
	}
	deps := Dependencies{
		Repo:      h.repo,
		Validator: validation.NewTransferValidator(ledgerSvc, decimal.NewFromInt(1000000)),
		Ledger:    ledgerSvc,
		Fraud:     h.fraud,
		Publisher: h.publisher,
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = NewService(deps, Config{
		FraudCheckTimeout:  50 * time.Millisecond,
		ReconcileGrace:     time.Second,
		ReconcileBatchSize: 10,
		MutationPolicy:     retry.New(3, time.Millisecond, 2*time.Millisecond),
		PersistPolicy:      retry.New(2, time.Millisecond, time.Millisecond),
	})
	return h
}

func (h *harness) balance(t *testing.T, ref string) decimal.Decimal {
	t.Helper()
	snap, err := h.ledger.GetAccountSnapshot(context.Background(), ref)
	require.NoError(t, err)
	return snap.Balance
}

func (h *harness) transferCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Transfer{}).Count(&n).Error)
	return n
}

func (h *harness) postingCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.LedgerPosting{}).Count(&n).Error)
	return n
}

func approved() *models.FraudCheckOutcome {
	return &models.FraudCheckOutcome{IsFraud: false, Status: models.FraudStatusApproved, Timestamp: time.Now().UTC()}
}

func declined() *models.FraudCheckOutcome {
	return &models.FraudCheckOutcome{IsFraud: true, Status: models.FraudStatusDeclined, Timestamp: time.Now().UTC()}
}

func withStatus(status models.TransferStatus) interface{} {
	return mock.MatchedBy(func(t *models.Transfer) bool { return t.Status == status })
}
