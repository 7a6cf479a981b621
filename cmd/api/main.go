package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/shed3/investment-accountant/internal/bookkeeper"
	natsinfra "github.com/shed3/investment-accountant/internal/infra/nats"
	"github.com/shed3/investment-accountant/internal/infra/postgres"
	infraRedis "github.com/shed3/investment-accountant/internal/infra/redis"
	"github.com/shed3/investment-accountant/internal/metrics"
	"github.com/shed3/investment-accountant/internal/module/accounting"
	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/internal/pricing"
	"github.com/shed3/investment-accountant/internal/transport/httpapi"
	"github.com/shed3/investment-accountant/internal/transport/httpapi/handler"
	"github.com/shed3/investment-accountant/internal/transport/httpapi/middleware"
	"github.com/shed3/investment-accountant/pkg/config"
	"github.com/shed3/investment-accountant/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting investment accountant",
		"env", cfg.Env,
		"port", cfg.Port,
		"period", fmt.Sprintf("%d%s", cfg.PeriodInterval, cfg.PeriodFreq),
	)

	// Accounting policy
	keeperOpts, err := bookkeeperOptions(cfg)
	if err != nil {
		log.Error("Invalid accounting policy", "error", err)
		os.Exit(1)
	}

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize Redis client for price caching
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established")

	// Initialize pricing components
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	priceRepo := postgres.NewPriceRepository(db.Pool)
	priceCache := infraRedis.NewPriceCache(redisClient, log)
	priceLoader := pricing.NewLoader(priceRepo, priceCache, log)

	// Metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// Entry publishing (if NATS is configured)
	var publisher accounting.Publisher
	if cfg.NATSURL != "" {
		nc, js, err := natsinfra.Connect(cfg.NATSURL)
		if err != nil {
			log.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		if err := natsinfra.EnsureStream(ctx, js); err != nil {
			log.Error("Failed to create entry stream", "error", err)
			os.Exit(1)
		}
		publisher = natsinfra.NewEntryPublisher(js, log)
		log.Info("Entry publishing enabled", "stream", natsinfra.StreamName)
	} else {
		log.Warn("NATS_URL not configured, entry publishing disabled")
	}

	// Initialize accounting service
	keeperOpts = append(keeperOpts, bookkeeper.WithRecorder(m), bookkeeper.WithLogger(log))
	newKeeper := func(src bookkeeper.PriceSource) *bookkeeper.BookKeeper {
		return bookkeeper.New(append([]bookkeeper.Option{bookkeeper.WithPriceSource(src)}, keeperOpts...)...)
	}
	accountingSvc := accounting.NewService(newKeeper, ledgerRepo, priceLoader, publisher, log,
		accounting.WithPublishRecorder(m),
	)

	restoreStart := time.Now()
	if err := accountingSvc.Restore(ctx); err != nil {
		log.Error("Failed to restore book", "error", err)
		os.Exit(1)
	}
	log.Info("Accounting service initialized", "restore_duration", time.Since(restoreStart).String())

	// Initialize HTTP handlers
	routerCfg := httpapi.Config{
		Logger:             log,
		AllowedOrigins:     cfg.AllowedOrigins,
		TransactionHandler: handler.NewTransactionHandler(accountingSvc, log),
		LedgerHandler:      handler.NewLedgerHandler(accountingSvc),
		PositionHandler:    handler.NewPositionHandler(accountingSvc),
		PeriodHandler:      handler.NewPeriodHandler(accountingSvc),
		PriceHandler:       handler.NewPriceHandler(accountingSvc),
		HealthHandler:      handler.NewHealthHandler(db.Pool, priceCache, accountingSvc),
		MetricsHandler:     m.Handler(),
		MetricsMiddleware:  m.Middleware,
	}

	// Create JWT middleware
	if cfg.JWTSecret != "" {
		routerCfg.JWTMiddleware = middleware.JWTMiddleware(middleware.NewJWTService(cfg.JWTSecret))
	} else {
		log.Warn("JWT_SECRET not configured, API authentication disabled")
	}

	r := httpapi.NewRouter(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}

// bookkeeperOptions translates the validated accounting policy
func bookkeeperOptions(cfg *config.Config) ([]bookkeeper.Option, error) {
	freq, err := bookkeeper.ParseFrequency(cfg.PeriodFreq)
	if err != nil {
		return nil, err
	}
	rates, err := position.ParseTaxRates(cfg.TaxRateLong, cfg.TaxRateShort)
	if err != nil {
		return nil, err
	}
	valuation, err := position.ParseValuation(cfg.Valuation)
	if err != nil {
		return nil, err
	}
	underfill, ok := bookkeeper.ParseUnderfillPolicy(cfg.UnderfillPolicy)
	if !ok {
		return nil, fmt.Errorf("unknown underfill policy %q", cfg.UnderfillPolicy)
	}

	return []bookkeeper.Option{
		bookkeeper.WithPeriod(freq, cfg.PeriodInterval),
		bookkeeper.WithTaxRates(rates),
		bookkeeper.WithValuation(valuation),
		bookkeeper.WithUnderfillPolicy(underfill),
	}, nil
}
