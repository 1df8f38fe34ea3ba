package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	apperrors "remit/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		write      func(c *fiber.Ctx) error
		wantStatus int
		wantBody   map[string]interface{}
	}{
		{
			name: "domain error keeps sentinel code",
			write: func(c *fiber.Ctx) error {
				return DomainError(c, fiber.StatusUnprocessableEntity,
					apperrors.Wrapf(apperrors.ErrIdempotencyConflict, "key %s", "k-1"))
			},
			wantStatus: fiber.StatusUnprocessableEntity,
			wantBody: map[string]interface{}{
				"error": apperrors.Wrapf(apperrors.ErrIdempotencyConflict, "key %s", "k-1").Error(),
				"code":  apperrors.ErrIdempotencyConflict.Code,
			},
		},
		{
			name: "plain error has no code",
			write: func(c *fiber.Ctx) error {
				return DomainError(c, fiber.StatusServiceUnavailable, errors.New("fraud service down"))
			},
			wantStatus: fiber.StatusServiceUnavailable,
			wantBody:   map[string]interface{}{"error": "fraud service down"},
		},
		{
			name:       "validation error uses invalid request code",
			write:      func(c *fiber.Ctx) error { return ValidationError(c, "amount is required") },
			wantStatus: fiber.StatusBadRequest,
			wantBody: map[string]interface{}{
				"error": "amount is required",
				"code":  apperrors.ErrInvalidRequest.Code,
			},
		},
		{
			name:       "forbidden",
			write:      func(c *fiber.Ctx) error { return Forbidden(c, "insufficient permissions") },
			wantStatus: fiber.StatusForbidden,
			wantBody:   map[string]interface{}{"error": "insufficient permissions"},
		},
		{
			name:       "unauthorized",
			write:      Unauthorized,
			wantStatus: fiber.StatusUnauthorized,
			wantBody:   map[string]interface{}{"error": "Unauthorized"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", tt.write)

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &body))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}
