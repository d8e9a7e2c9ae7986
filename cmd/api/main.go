package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/httpserver"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/notifier"
	"storefront-checkout/internal/service/address"
	cartsvc "storefront-checkout/internal/service/cart"
	"storefront-checkout/internal/service/checkout"
	"storefront-checkout/internal/service/identity"
	"storefront-checkout/internal/service/session"
	"storefront-checkout/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.LogEnv).Named("api")
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := storage.NewPostgres(dbpool, logger.Named("storage"), storage.Options{TxTimeout: cfg.CheckoutTxTimeout})

	numbers, err := checkout.NewNumberEncoder(cfg.OrderNumberSalt)
	if err != nil {
		logger.Fatal("init order numbers", zap.Error(err))
	}

	var sinks []notifier.Sink
	if cfg.InventorySyncURL != "" {
		sinks = append(sinks, notifier.NewHTTPSink(cfg.InventorySyncURL, cfg.InventorySyncSecret, &http.Client{Timeout: 10 * time.Second}))
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, notifier.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaOrderTopic))
	}
	dispatcher := notifier.NewDispatcher(sinks, notifier.Options{
		Workers:   cfg.NotifierWorkers,
		QueueSize: cfg.NotifierQueue,
	}, logger.Named("notifier"), m)
	logger.Info("notifier ready", zap.Int("sinks", len(sinks)))

	normalizer := address.NewNormalizer(cfg.DefaultPhoneRegion)
	ledger := address.NewLedger(logger.Named("address"))

	checkoutService := checkout.NewService(checkout.Options{
		Store:      store,
		Normalizer: normalizer,
		Ledger:     ledger,
		Identity:   identity.NewResolver(logger.Named("identity")),
		Numbers:    numbers,
		Notifier:   dispatcher,
		Metrics:    m,
		Logger:     logger.Named("checkout"),
	})

	srv, err := httpserver.New(cfg.HTTPAddr, logger.Named("http"), dbpool, httpserver.Deps{
		ProjectRepo: store.Repos().Projects,
		Sessions:    session.New(cfg.SessionSecret),
		CartSvc:     cartsvc.New(store, logger.Named("cart")),
		CheckoutSvc: checkoutService,
		AddressSvc:  address.NewService(store, ledger, normalizer),
		Metrics:     m,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	// orders committed before shutdown still get their notifications
	if err := dispatcher.Close(ctx); err != nil {
		logger.Warn("notifier did not drain", zap.Error(err))
	}
	logger.Info("server stopped")
}
