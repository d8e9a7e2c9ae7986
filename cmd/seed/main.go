package main

import (
	"context"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/seed"
	"storefront-checkout/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.LogEnv).Named("seed")
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	store := storage.NewPostgres(pool, logger, storage.Options{})
	var proj string
	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		p, err := seed.Apply(ctx, tx, logger)
		if err == nil {
			proj = p.Key
		}
		return err
	})
	if err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}
	logger.Info("seed applied", zap.String("project", proj))
}
