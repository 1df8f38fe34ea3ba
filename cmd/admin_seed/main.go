// Package main seeds ledger accounts for local development and prints an
// access token for each owner.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remit/internal/config"
	apperrors "remit/internal/errors"
	"remit/internal/logging"
	"remit/internal/models"
	"remit/internal/repositories"
	"remit/internal/services/ledger"
	"remit/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultAccounts = "ACC-1:alice:5000:USD,ACC-2:bob:0:USD"

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger := logging.New(cfg.Env)
	defer logger.Sync() //nolint:errcheck

	accounts, err := parseAccounts(config.GetEnv("SEED_ACCOUNTS", defaultAccounts))
	if err != nil {
		logger.Fatal("invalid SEED_ACCOUNTS", zap.Error(err))
	}

	db, err := repositories.NewDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	if err := repositories.AutoMigrate(db); err != nil {
		logger.Fatal("failed to migrate", zap.Error(err))
	}

	ctx := context.Background()
	svc := ledger.NewService(db, logger)
	owners := map[string]bool{}
	for i := range accounts {
		a := &accounts[i]
		owners[a.OwnerID] = true

		if _, err := svc.GetAccountSnapshot(ctx, a.Ref); err == nil {
			logger.Info("account already exists", zap.String("ref", a.Ref))
			continue
		} else if !apperrors.Is(err, apperrors.ErrAccountNotFound) {
			logger.Fatal("failed to look up account", zap.String("ref", a.Ref), zap.Error(err))
		}

		if err := svc.OpenAccount(ctx, a); err != nil {
			logger.Fatal("failed to open account", zap.String("ref", a.Ref), zap.Error(err))
		}
		logger.Info("account opened",
			zap.String("ref", a.Ref),
			zap.String("owner", a.OwnerID),
			zap.String("balance", a.Balance.StringFixed(2)))
	}

	for owner := range owners {
		token, err := utils.GenerateAccessToken(models.UserClaims{
			UserID:      owner,
			Role:        "user",
			Permissions: []string{models.PermissionTransferRead, models.PermissionTransferWrite},
		}, []byte(cfg.JWTSecret), 24*time.Hour)
		if err != nil {
			logger.Fatal("failed to sign token", zap.Error(err))
		}
		fmt.Printf("%s\t%s\n", owner, token)
	}
}

// parseAccounts reads "ref:owner:balance[:currency]" entries separated by
// commas.
func parseAccounts(list string) ([]models.Account, error) {
	var accounts []models.Account
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("entry %q: want ref:owner:balance[:currency]", entry)
		}
		balance, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("entry %q: balance: %w", entry, err)
		}
		if balance.IsNegative() {
			return nil, fmt.Errorf("entry %q: balance must not be negative", entry)
		}
		currency := "USD"
		if len(parts) == 4 {
			currency = strings.ToUpper(parts[3])
		}
		accounts = append(accounts, models.Account{
			Ref:      parts[0],
			OwnerID:  parts[1],
			Balance:  balance,
			Currency: currency,
			Status:   models.AccountStatusActive,
		})
	}
	return accounts, nil
}
