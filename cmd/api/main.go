package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/marketplace/internal/accounts"
	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/cache"
	"github.com/joao-fontenele/marketplace/internal/config"
	"github.com/joao-fontenele/marketplace/internal/inventory"
	"github.com/joao-fontenele/marketplace/internal/messaging"
	"github.com/joao-fontenele/marketplace/internal/notify"
	"github.com/joao-fontenele/marketplace/internal/orders"
	"github.com/joao-fontenele/marketplace/internal/telemetry"
	"github.com/joao-fontenele/marketplace/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load("8081")
	if err != nil {
		return err
	}
	if err := cfg.Require("POSTGRES_URL", "JWT_SECRET"); err != nil {
		return err
	}

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "marketplace-api",
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

	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.PostgresURL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var publisher orders.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events disabled")
	}

	var history orders.HistoryCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		history = cache.NewOrderHistory(client, cfg.HistoryCacheTTL, logger)
	} else {
		logger.Warn("REDIS_URL not set, order history is not cached")
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, cfg.AdminTokenTTL)
	guard := auth.NewGuard(tokens, logger)

	products := inventory.NewRepository(db)
	accountsRepo := accounts.NewRepository(db)
	fanout := notify.NewFanout(notify.NewRepository(db), accountsRepo, logger)

	orderSvc := orders.NewService(orders.NewRepository(db), products, accountsRepo, fanout,
		publisher, history, metrics, logger)
	accountSvc := accounts.NewService(accountsRepo, products, orderSvc, tokens, logger)

	if sa := cfg.SuperAdmin; sa.Enabled() {
		if err := accountSvc.EnsureSuperAdmin(ctx, sa.Name, sa.Email, sa.Password); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", providers.MetricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	inventory.NewHandler(products, logger).Register(mux, guard)
	accounts.NewHandler(accountSvc, logger).Register(mux, guard)
	notify.NewHandler(fanout, logger).Register(mux, guard)
	orders.NewHandler(orderSvc, logger).Register(mux, guard)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(telemetry.WithHTTPRoute(mux), "marketplace-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting marketplace api", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errc:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	orderSvc.Wait()
	return nil
}
