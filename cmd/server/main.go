// Package main runs the transfer API: the HTTP server, the fraud verdict
// consumer and the reconciler, sharing one set of connections.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"remit/internal/config"
	"remit/internal/handlers"
	"remit/internal/logging"
	"remit/internal/messaging"
	"remit/internal/metrics"
	"remit/internal/middleware"
	"remit/internal/repositories"
	"remit/internal/repositories/cache"
	"remit/internal/routes"
	"remit/internal/services/fraud"
	"remit/internal/services/ledger"
	"remit/internal/services/notification"
	"remit/internal/services/transfer"
	"remit/internal/utils/retry"
	"remit/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger := logging.New(cfg.Env)
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repositories.NewDatabase(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := repositories.AutoMigrate(db); err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("failed to close database connection", zap.Error(err))
			}
		}
	}()

	cacheSvc := cache.NewCacheService(cache.NewRedisClient(cfg.Redis), cfg.Fraud.ResultTTL)
	defer cacheSvc.Close()
	if err := cacheSvc.HealthCheck(ctx); err != nil {
		logger.Warn("redis not reachable at startup", zap.Error(err))
	}

	broker, err := messaging.Dial(ctx, cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledgerSvc := ledger.NewService(db, logger.Named("ledger"))
	gateway := fraud.NewGateway(broker, cacheSvc, fraud.GatewayConfig{ResultTTL: cfg.Fraud.ResultTTL}, logger.Named("fraud"))
	transferSvc := transfer.NewService(transfer.Dependencies{
		Repo:      repositories.NewTransferRepository(db),
		Validator: validation.NewTransferValidator(ledgerSvc, decimal.NewFromFloat(cfg.Saga.MaxAmount)),
		Ledger:    ledgerSvc,
		Fraud:     gateway,
		Publisher: notification.NewService(broker, retry.New(3, 100*time.Millisecond, time.Second), logger.Named("notification")),
		Metrics:   metrics.NewSaga(reg),
		Logger:    logger.Named("saga"),
	}, transfer.Config{
		FraudCheckTimeout:  cfg.Saga.FraudCheckTimeout,
		ReconcileGrace:     cfg.Saga.ReconcileGrace,
		ReconcileBatchSize: cfg.Saga.ReconcileBatchSize,
		MutationPolicy:     retry.New(cfg.Saga.MutationMaxAttempts, cfg.Saga.MutationBaseDelay, cfg.Saga.MutationMaxDelay),
	})

	app := fiber.New(fiber.Config{
		AppName:               "remit",
		DisableStartupMessage: config.IsProduction(),
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.Saga.FraudCheckTimeout + 10*time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		AllowMethods: "GET,POST,HEAD",
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Output: logging.StdLogger(logger.Named("http")).Writer(),
	}))
	pingDB := func(ctx context.Context) error { return repositories.Ping(ctx, db) }
	routes.SetupRoutes(app, routes.Handlers{
		Transfer: handlers.NewTransferHandler(transferSvc, logger.Named("http")),
		Admin:    handlers.NewAdminHandler(transferSvc, logger.Named("admin")),
		Health:   handlers.NewHealthHandler(pingDB, cacheSvc, broker, "1.0.0"),
		Auth:     middleware.NewAuthMiddleware(cfg.JWTSecret, logger.Named("auth")),
		HTTP:     metrics.NewHTTP(reg),
		Gatherer: reg,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	g.Go(func() error {
		return broker.Consume(gctx, messaging.Subscription{
			Exchange: messaging.ExchangeFraudResult,
			Prefetch: 50,
		}, gateway.HandleOutcome)
	})
	g.Go(func() error {
		return transfer.NewReconciler(transferSvc, cfg.Saga.ReconcileInterval, logger.Named("reconciler")).Run(gctx)
	})
	g.Go(func() error {
		repositories.LogPoolStats(gctx, db, logger.Named("db"), time.Minute)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}
