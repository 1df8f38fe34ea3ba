package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Pinger checks a backing store.
type Pinger func(ctx context.Context) error

// CacheChecker is the part of the result cache the health check uses.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
	GetStats() *redis.PoolStats
}

// BrokerChecker reports whether the broker connection is up.
type BrokerChecker interface {
	IsConnected() bool
}

// HealthHandler reports the state of the database, cache and broker.
type HealthHandler struct {
	db      Pinger
	cache   CacheChecker
	broker  BrokerChecker
	version string
}

func NewHealthHandler(db Pinger, cache CacheChecker, broker BrokerChecker, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		cache:   cache,
		broker:  broker,
		version: version,
	}
}

// HealthCheck answers 200 when every dependency is reachable and 503
// otherwise.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	healthy := true
	services := fiber.Map{}

	if err := h.db(ctx); err != nil {
		healthy = false
		services["database"] = "unavailable"
	} else {
		services["database"] = "connected"
	}
	if err := h.cache.HealthCheck(ctx); err != nil {
		healthy = false
		services["redis"] = "unavailable"
	} else {
		services["redis"] = "connected"
	}
	if h.broker.IsConnected() {
		services["broker"] = "connected"
	} else {
		healthy = false
		services["broker"] = "unavailable"
	}

	status, code := "ok", fiber.StatusOK
	if !healthy {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"version":  h.version,
		"services": services,
	})
}

// CacheStats reports the redis connection pool counters.
func (h *HealthHandler) CacheStats(c *fiber.Ctx) error {
	poolStats := h.cache.GetStats()
	return c.JSON(fiber.Map{
		"pool_stats": fiber.Map{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"timeouts":    poolStats.Timeouts,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
			"stale_conns": poolStats.StaleConns,
		},
	})
}
