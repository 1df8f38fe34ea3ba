// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"remit/internal/handlers"
	"remit/internal/metrics"
	"remit/internal/middleware"
	"remit/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Transfer *handlers.TransferHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	Auth     *middleware.AuthMiddleware
	HTTP     *metrics.HTTP
	Gatherer prometheus.Gatherer
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, h Handlers) {
	if h.HTTP != nil {
		app.Use(h.HTTP.Middleware())
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Remit API",
			"version": "1.0.0",
			"docs":    "/api",
		})
	})
	app.Get("/health", h.Health.HealthCheck)
	if h.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", h.Auth.Handler)

	transfers := api.Group("/transfers")
	transfers.Post("/", middleware.HasPermission(models.PermissionTransferWrite), h.Transfer.CreateTransfer)
	transfers.Get("/:id", middleware.HasPermission(models.PermissionTransferRead), h.Transfer.GetTransfer)

	api.Get("/accounts/:ref/transfers", middleware.HasPermission(models.PermissionTransferRead), h.Transfer.ListAccountTransfers)

	admin := api.Group("/admin", middleware.HasPermission(models.PermissionAdmin))
	admin.Get("/cache-stats", h.Health.CacheStats)
	admin.Post("/reconcile", h.Admin.Reconcile)
}
