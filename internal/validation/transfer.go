package validation

import (
	"context"

	apperrors "remit/internal/errors"
	"remit/internal/models"

	"github.com/shopspring/decimal"
)

// SnapshotReader reads current account state from the ledger.
type SnapshotReader interface {
	GetAccountSnapshot(ctx context.Context, accountRef string) (*models.AccountSnapshot, error)
}

// ResolvedTransfer holds the snapshots a request was validated against.
type ResolvedTransfer struct {
	Source      *models.AccountSnapshot
	Destination *models.AccountSnapshot
}

// TransferValidator checks request shape, source ownership and available
// funds. It reads fresh snapshots on every call; the ledger mutation
// re-checks funds atomically later.
type TransferValidator struct {
	ledger    SnapshotReader
	maxAmount decimal.Decimal
}

func NewTransferValidator(ledger SnapshotReader, maxAmount decimal.Decimal) *TransferValidator {
	return &TransferValidator{
		ledger:    ledger,
		maxAmount: maxAmount,
	}
}

// Transfer collects shape errors for req.
func (v *Validator) Transfer(req *models.TransferRequest, maxAmount decimal.Decimal) {
	v.Required("from_account", req.FromAccount)
	v.MaxLength("from_account", req.FromAccount, MaxAccountRefLength)
	v.Required("to_account", req.ToAccount)
	v.MaxLength("to_account", req.ToAccount, MaxAccountRefLength)
	v.Check(req.FromAccount == "" || req.FromAccount != req.ToAccount,
		"to_account", "must differ from from_account")
	v.Amount("amount", req.Amount, maxAmount, AmountScale)
	v.MaxLength("description", req.Description, MaxDescriptionLength)
	v.MaxLength("idempotency_key", req.IdempotencyKey, MaxIdempotencyKeyLength)
}

// Validate returns the resolved accounts or ErrInvalidRequest, ErrNotOwner,
// ErrInsufficientFunds. Ledger outages come back as they are.
func (tv *TransferValidator) Validate(ctx context.Context, req *models.TransferRequest, requester models.Requester) (*ResolvedTransfer, error) {
	v := New()
	v.Required("requester", requester.UserID)
	v.Transfer(req, tv.maxAmount)
	if !v.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "%s", v.Error())
	}

	source, err := tv.lookup(ctx, "from_account", req.FromAccount)
	if err != nil {
		return nil, err
	}
	if source.OwnerID != requester.UserID {
		return nil, apperrors.Wrapf(apperrors.ErrNotOwner, "account %s", source.Ref)
	}

	dest, err := tv.lookup(ctx, "to_account", req.ToAccount)
	if err != nil {
		return nil, err
	}

	v.Check(source.Status == models.AccountStatusActive, "from_account", "account is not active")
	v.Check(dest.Status == models.AccountStatusActive, "to_account", "account is not active")
	v.Check(source.Currency == dest.Currency, "to_account", "currency does not match from_account")
	if !v.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "%s", v.Error())
	}

	if source.Balance.LessThan(req.Amount) {
		return nil, apperrors.Wrapf(apperrors.ErrInsufficientFunds,
			"account %s balance %s below %s", source.Ref, source.Balance, req.Amount)
	}

	return &ResolvedTransfer{Source: source, Destination: dest}, nil
}

func (tv *TransferValidator) lookup(ctx context.Context, field, ref string) (*models.AccountSnapshot, error) {
	snap, err := tv.ledger.GetAccountSnapshot(ctx, ref)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrAccountNotFound) {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "%s: account %s does not exist", field, ref)
		}
		return nil, err
	}
	return snap, nil
}
