package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joao-fontenele/marketplace/internal/accounts"
	"github.com/joao-fontenele/marketplace/internal/cache"
	"github.com/joao-fontenele/marketplace/internal/config"
	"github.com/joao-fontenele/marketplace/internal/inventory"
	"github.com/joao-fontenele/marketplace/internal/janitor"
	"github.com/joao-fontenele/marketplace/internal/notify"
	"github.com/joao-fontenele/marketplace/internal/orders"
	"github.com/joao-fontenele/marketplace/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if err := run(logger, *once); err != nil {
		logger.Error("janitor stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, once bool) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.Require("POSTGRES_URL"); err != nil {
		return err
	}
	once = once || cfg.JanitorOnce

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "marketplace-janitor",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()

	metrics, err := telemetry.NewInstruments()
	if err != nil {
		return err
	}

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var history orders.HistoryCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		history = cache.NewOrderHistory(client, cfg.HistoryCacheTTL, logger)
	}

	accountsRepo := accounts.NewRepository(db)
	svc := orders.NewService(orders.NewRepository(db), inventory.NewRepository(db), accountsRepo,
		notify.NewFanout(notify.NewRepository(db), accountsRepo, logger), nil, history, metrics, logger)
	j := janitor.New(svc, cfg.JanitorInterval, logger)

	if once {
		_, err := j.RunOnce(ctx)
		return err
	}

	if err := j.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("janitor stopped")
	return nil
}
