package errors

// Caller errors: returned before any transfer record exists.
var (
	ErrInvalidRequest = &DomainError{
		Code:    "INVALID_REQUEST",
		Message: "invalid transfer request",
	}
	ErrNotOwner = &DomainError{
		Code:    "NOT_OWNER",
		Message: "requester does not own the source account",
	}
	ErrInsufficientFunds = &DomainError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient funds",
	}
	ErrServiceUnavailable = &DomainError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: "fraud check service unavailable",
	}
	ErrIdempotencyConflict = &DomainError{
		Code:    "IDEMPOTENCY_CONFLICT",
		Message: "idempotency key reused with a different request",
	}
	ErrPersistence = &DomainError{
		Code:    "PERSISTENCE_ERROR",
		Message: "transfer store unavailable, retry later",
	}
)

// Store and collaborator errors.
var (
	ErrDuplicateTransferID = &DomainError{
		Code:    "DUPLICATE_TRANSFER_ID",
		Message: "transfer id already exists",
	}
	ErrTransferNotFound = &DomainError{
		Code:    "TRANSFER_NOT_FOUND",
		Message: "transfer not found",
	}
	ErrInvalidTransition = &DomainError{
		Code:    "INVALID_TRANSITION",
		Message: "status transition not allowed",
	}
	ErrAccountNotFound = &DomainError{
		Code:    "ACCOUNT_NOT_FOUND",
		Message: "account not found",
	}
	ErrMutationConflict = &DomainError{
		Code:    "MUTATION_CONFLICT",
		Message: "transfer id already applied with a different mutation",
	}
	ErrFraudCheckTimeout = &DomainError{
		Code:    "FRAUD_CHECK_TIMEOUT",
		Message: "fraud check outcome not received in time",
	}
)
