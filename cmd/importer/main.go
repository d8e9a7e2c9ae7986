package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/importer"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/repository/product"
	"storefront-checkout/internal/repository/project"

	"go.uber.org/zap"
)

func main() {
	var (
		filePath   string
		projectKey string
	)
	flag.StringVar(&filePath, "file", "", "Path to the variant and inventory CSV")
	flag.StringVar(&projectKey, "project", "", "Project key to import into")
	flag.Parse()

	if filePath == "" || projectKey == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := logging.New(cfg.LogEnv).Named("importer")
	defer func() { _ = logger.Sync() }()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	projRepo := project.NewPostgres(pool, logger)
	proj, err := projRepo.GetByKey(ctx, projectKey)
	if errors.Is(err, domain.ErrNotFound) {
		proj, err = projRepo.Create(ctx, &domain.Project{Key: projectKey, Name: projectKey})
	}
	if err != nil {
		logger.Fatal("ensure project", zap.String("project", projectKey), zap.Error(err))
	}

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, product.NewPostgres(pool, logger), proj.ID, logger)

	start := time.Now()
	res, err := imp.Run(ctx)
	if err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}
	logger.Info("imported catalog",
		zap.String("project", projectKey),
		zap.Int("products", res.Products),
		zap.Int("variants", res.Variants),
		zap.Int("inventory_records", res.Inventory),
		zap.Duration("took", time.Since(start).Truncate(time.Millisecond)),
	)
}
