// Package response writes the JSON envelopes shared by every handler:
// {"message", "data"} on success and {"error", "code"} on failure.
package response

import (
	apperrors "remit/internal/errors"

	"github.com/gofiber/fiber/v2"
)

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

// Error writes a failure without a code.
func Error(c *fiber.Ctx, status int, message string) error {
	return Coded(c, status, "", message)
}

// Coded writes a failure with a machine-readable code. An empty code is
// left out of the body.
func Coded(c *fiber.Ctx, status int, code, message string) error {
	body := fiber.Map{"error": message}
	if code != "" {
		body["code"] = code
	}
	return c.Status(status).JSON(body)
}

// DomainError writes err under the code of the first DomainError in its
// chain.
func DomainError(c *fiber.Ctx, status int, err error) error {
	return Coded(c, status, apperrors.Code(err), err.Error())
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func ServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

// ValidationError rejects a malformed request body with the same code the
// transfer validator uses.
func ValidationError(c *fiber.Ctx, message string) error {
	return Coded(c, fiber.StatusBadRequest, apperrors.ErrInvalidRequest.Code, message)
}
