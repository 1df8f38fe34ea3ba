// Package ledger keeps account balances and applies transfer mutations as
// paired debit and credit postings.
package ledger

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/models"
	"remit/internal/repositories"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService returns a gorm-backed ledger.
func NewService(db *gorm.DB, logger *zap.Logger) Service {
	return &service{
		db:     db,
		logger: logger,
	}
}

func (s *service) GetAccountSnapshot(ctx context.Context, accountRef string) (*models.AccountSnapshot, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("ref = ?", accountRef).First(&account).Error; err != nil {
		return nil, mapLookupError(err)
	}
	return snapshotOf(&account), nil
}

func (s *service) ApplyTransferMutation(ctx context.Context, m Mutation) error {
	if !m.Amount.IsPositive() || m.SourceRef == m.DestRef {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "mutation %s is malformed", m.TransferID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := lockAccounts(tx, m.SourceRef, m.DestRef)
		if err != nil {
			return err
		}

		// With both rows locked, an existing posting means a previous call
		// already committed this mutation.
		applied, err := alreadyApplied(tx, m)
		if err != nil || applied {
			return err
		}

		source := accounts[m.SourceRef]
		if source.Balance.LessThan(m.Amount) {
			return apperrors.Wrapf(apperrors.ErrInsufficientFunds,
				"account %s balance %s below %s", source.Ref, source.Balance, m.Amount)
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Account{}).Where("ref = ?", m.SourceRef).Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", m.Amount),
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Account{}).Where("ref = ?", m.DestRef).Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", m.Amount),
			"updated_at": now,
		}).Error; err != nil {
			return err
		}

		postings := []models.LedgerPosting{
			{TransferID: m.TransferID, Direction: models.PostingDebit, AccountRef: m.SourceRef, Amount: m.Amount},
			{TransferID: m.TransferID, Direction: models.PostingCredit, AccountRef: m.DestRef, Amount: m.Amount},
		}
		return tx.Create(&postings).Error
	})

	switch {
	case err == nil:
		s.logger.Debug("ledger mutation applied",
			zap.String("transfer_id", m.TransferID),
			zap.String("amount", m.Amount.String()))
		return nil
	case repositories.IsUniqueViolation(err):
		// A concurrent call with the same transfer id committed first.
		s.logger.Info("ledger mutation already applied concurrently", zap.String("transfer_id", m.TransferID))
		return nil
	case isDomainError(err):
		return err
	default:
		return apperrors.Wrap(apperrors.ErrPersistence, err)
	}
}

func (s *service) OpenAccount(ctx context.Context, account *models.Account) error {
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return nil
}

func (s *service) GetPostings(ctx context.Context, transferID string) ([]models.LedgerPosting, error) {
	var postings []models.LedgerPosting
	err := s.db.WithContext(ctx).
		Where("transfer_id = ?", transferID).
		Order("direction DESC").
		Find(&postings).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return postings, nil
}

// lockAccounts takes row locks in ref order so two opposing transfers cannot
// deadlock.
func lockAccounts(tx *gorm.DB, refs ...string) (map[string]*models.Account, error) {
	ordered := append([]string(nil), refs...)
	sort.Strings(ordered)

	out := make(map[string]*models.Account, len(ordered))
	for _, ref := range ordered {
		var account models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("ref = ?", ref).
			First(&account).Error
		if err != nil {
			return nil, mapLookupError(err)
		}
		out[ref] = &account
	}
	return out, nil
}

func alreadyApplied(tx *gorm.DB, m Mutation) (bool, error) {
	var postings []models.LedgerPosting
	if err := tx.Where("transfer_id = ?", m.TransferID).Find(&postings).Error; err != nil {
		return false, err
	}
	if len(postings) == 0 {
		return false, nil
	}
	for _, p := range postings {
		want := m.SourceRef
		if p.Direction == models.PostingCredit {
			want = m.DestRef
		}
		if p.AccountRef != want || !p.Amount.Equal(m.Amount) {
			return false, apperrors.Wrapf(apperrors.ErrMutationConflict,
				"transfer %s already posted %s %s to %s", m.TransferID, p.Direction, p.Amount, p.AccountRef)
		}
	}
	return true, nil
}

func mapLookupError(err error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrAccountNotFound
	}
	return apperrors.Wrap(apperrors.ErrPersistence, err)
}

func isDomainError(err error) bool {
	var de *apperrors.DomainError
	return stderrors.As(err, &de)
}

func snapshotOf(a *models.Account) *models.AccountSnapshot {
	return &models.AccountSnapshot{
		Ref:      a.Ref,
		OwnerID:  a.OwnerID,
		Balance:  a.Balance,
		Currency: a.Currency,
		Status:   a.Status,
	}
}
