package handlers

import (
	"remit/internal/services/transfer"
	"remit/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	service transfer.Service
	logger  *zap.Logger
}

func NewAdminHandler(s transfer.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{service: s, logger: logger}
}

// Reconcile runs one reconciliation sweep now instead of waiting for the
// next tick.
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	moved, err := h.service.Reconcile(c.UserContext())
	if err != nil {
		h.logger.Error("manual reconcile failed", zap.Error(err))
		return response.ServerError(c, "reconcile failed")
	}
	h.logger.Info("manual reconcile finished", zap.Int("moved", moved))
	return response.Success(c, "reconcile finished", fiber.Map{"moved": moved})
}
