package handlers

import (
	"reflect"
	"strings"
	"time"

	apperrors "remit/internal/errors"
	"remit/internal/middleware"
	"remit/internal/models"
	"remit/internal/services/transfer"
	"remit/internal/utils/pagination"
	"remit/internal/utils/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HeaderIdempotencyKey carries the client's idempotency key. A key in the
// body is used when the header is absent.
const HeaderIdempotencyKey = "Idempotency-Key"

// TransferHandler exposes the transfer saga over HTTP.
type TransferHandler struct {
	service  transfer.Service
	validate *validator.Validate
	logger   *zap.Logger
}

func NewTransferHandler(s transfer.Service, logger *zap.Logger) *TransferHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &TransferHandler{
		service:  s,
		validate: v,
		logger:   logger,
	}
}

type createTransferRequest struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
	FromAccount    string          `json:"from_account" validate:"required,max=64"`
	ToAccount      string          `json:"to_account" validate:"required,max=64,nefield=FromAccount"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=500"`
}

// TransferResponse is the JSON view of a transfer.
type TransferResponse struct {
	TransferID    string                `json:"transfer_id"`
	Status        models.TransferStatus `json:"status"`
	FailureReason string                `json:"failure_reason,omitempty"`
	FromAccount   string                `json:"from_account"`
	ToAccount     string                `json:"to_account"`
	Amount        string                `json:"amount"`
	Currency      string                `json:"currency"`
	Description   string                `json:"description,omitempty"`
	FraudChecked  bool                  `json:"fraud_checked"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func toResponse(t *models.Transfer) TransferResponse {
	return TransferResponse{
		TransferID:    t.TransferID,
		Status:        t.Status,
		FailureReason: t.FailureReason,
		FromAccount:   t.FromAccount,
		ToAccount:     t.ToAccount,
		Amount:        t.Amount.StringFixed(2),
		Currency:      t.Currency,
		Description:   t.Description,
		FraudChecked:  t.FraudChecked,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// CreateTransfer handles POST /api/transfers. A new transfer answers 201, a
// replayed one 200.
func (h *TransferHandler) CreateTransfer(c *fiber.Ctx) error {
	requester, ok := middleware.RequesterFrom(c)
	if !ok {
		return response.Unauthorized(c)
	}

	var req createTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if key := strings.TrimSpace(c.Get(HeaderIdempotencyKey)); key != "" {
		req.IdempotencyKey = key
	}
	if err := h.validate.Struct(req); err != nil {
		return response.ValidationError(c, describeValidation(err))
	}

	result, err := h.service.CreateTransfer(c.UserContext(), &models.TransferRequest{
		IdempotencyKey: req.IdempotencyKey,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Description:    req.Description,
	}, requester)
	if err != nil {
		return h.domainError(c, err)
	}

	status := fiber.StatusCreated
	message := "transfer accepted"
	if result.Duplicate {
		status = fiber.StatusOK
		message = "transfer already submitted"
	}
	return c.Status(status).JSON(fiber.Map{
		"message":   message,
		"duplicate": result.Duplicate,
		"data":      toResponse(result.Transfer),
	})
}

// GetTransfer handles GET /api/transfers/:id.
func (h *TransferHandler) GetTransfer(c *fiber.Ctx) error {
	requester, ok := middleware.RequesterFrom(c)
	if !ok {
		return response.Unauthorized(c)
	}

	t, err := h.service.GetTransfer(c.UserContext(), c.Params("id"), requester)
	if err != nil {
		return h.domainError(c, err)
	}
	return response.Success(c, "transfer retrieved", toResponse(t))
}

// ListAccountTransfers handles GET /api/accounts/:ref/transfers.
func (h *TransferHandler) ListAccountTransfers(c *fiber.Ctx) error {
	requester, ok := middleware.RequesterFrom(c)
	if !ok {
		return response.Unauthorized(c)
	}

	p := pagination.ParseFromRequest(c)
	transfers, err := h.service.ListAccountTransfers(c.UserContext(), c.Params("ref"), requester, p.Limit, p.Offset)
	if err != nil {
		return h.domainError(c, err)
	}

	items := make([]TransferResponse, 0, len(transfers))
	for i := range transfers {
		items = append(items, toResponse(&transfers[i]))
	}
	return c.JSON(pagination.Response(p, items))
}

// domainError maps a DomainError code to an HTTP status.
func (h *TransferHandler) domainError(c *fiber.Ctx, err error) error {
	status := StatusForError(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		h.logger.Error("transfer request failed", zap.Error(err), zap.String("path", c.Path()))
		return response.ServerError(c, "internal error")
	}
	return response.DomainError(c, status, err)
}

// StatusForError returns the HTTP status for err.
func StatusForError(err error) int {
	switch apperrors.Code(err) {
	case apperrors.ErrInvalidRequest.Code:
		return fiber.StatusBadRequest
	case apperrors.ErrNotOwner.Code:
		return fiber.StatusForbidden
	case apperrors.ErrTransferNotFound.Code, apperrors.ErrAccountNotFound.Code:
		return fiber.StatusNotFound
	case apperrors.ErrIdempotencyConflict.Code, apperrors.ErrDuplicateTransferID.Code:
		return fiber.StatusConflict
	case apperrors.ErrInsufficientFunds.Code:
		return fiber.StatusUnprocessableEntity
	case apperrors.ErrServiceUnavailable.Code, apperrors.ErrPersistence.Code:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+": failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}
