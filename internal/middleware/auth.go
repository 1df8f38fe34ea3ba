// Package middleware provides HTTP middleware for the fiber app: bearer token
// authentication and permission checks.
package middleware

import (
	"strings"

	"remit/internal/models"
	"remit/internal/utils"
	"remit/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Locals keys set by AuthMiddleware.
const (
	LocalClaims    = "claims"
	LocalRequester = "requester"
)

// AuthMiddleware validates bearer JWTs and stores the caller in the request
// locals.
type AuthMiddleware struct {
	secret []byte
	logger *zap.Logger
}

func NewAuthMiddleware(secret string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// Handler checks for:
// - Presence of Authorization header with Bearer token
// - Valid HS256 signature and expiry
// - A non-empty user id
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return response.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := utils.ParseAccessToken(tokenString, m.secret)
	if err != nil {
		m.logger.Debug("token rejected", zap.Error(err), zap.String("path", c.Path()))
		return response.Error(c, fiber.StatusUnauthorized, "invalid token")
	}

	c.Locals(LocalClaims, claims)
	c.Locals(LocalRequester, models.Requester{
		UserID:    claims.UserID,
		AuthToken: tokenString,
	})
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
// Admins pass every check.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(LocalClaims).(*models.UserClaims)
		if !ok {
			return response.Unauthorized(c)
		}
		if claims.Role == "admin" || claims.HasPermission(permission) {
			return c.Next()
		}
		return response.Forbidden(c, "insufficient permissions")
	}
}

// RequesterFrom returns the caller stored by AuthMiddleware.
func RequesterFrom(c *fiber.Ctx) (models.Requester, bool) {
	r, ok := c.Locals(LocalRequester).(models.Requester)
	return r, ok
}
