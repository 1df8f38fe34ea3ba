// Package main runs the fraud detector worker. It consumes CheckFraud,
// publishes verdicts to FraudResult and serves /health and /metrics.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"remit/internal/config"
	"remit/internal/logging"
	"remit/internal/messaging"
	"remit/internal/metrics"
	"remit/internal/repositories/cache"
	"remit/internal/services/fraud"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger := logging.New(cfg.Env).Named("fraud_worker")
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheSvc := cache.NewCacheService(cache.NewRedisClient(cfg.Redis), cfg.Fraud.ResultTTL)
	defer cacheSvc.Close()

	broker, err := messaging.Dial(ctx, cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	detector := fraud.NewDetector(fraud.DetectorConfig{
		Threshold: decimal.NewFromFloat(cfg.Fraud.Threshold),
		ResultTTL: cfg.Fraud.ResultTTL,
		DedupeTTL: cfg.Fraud.DedupeTTL,
	}, cacheSvc, broker, metrics.NewDetector(reg), logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		hctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		redisOK := cacheSvc.HealthCheck(hctx) == nil
		brokerOK := broker.IsConnected()
		status := fiber.StatusOK
		if !redisOK || !brokerOK {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"redis":  redisOK,
			"broker": brokerOK,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("metrics server listening", zap.String("port", cfg.MetricsPort))
		return app.Listen(":" + cfg.MetricsPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(5 * time.Second)
	})
	g.Go(func() error {
		logger.Info("consuming fraud check requests",
			zap.String("queue", messaging.QueueCheckFraud),
			zap.String("threshold", decimal.NewFromFloat(cfg.Fraud.Threshold).String()))
		return broker.Consume(gctx, messaging.Subscription{
			Queue:    messaging.QueueCheckFraud,
			Prefetch: 10,
		}, detector.Handle)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
