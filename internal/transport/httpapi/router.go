package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shed3/investment-accountant/internal/transport/httpapi/handler"
	"github.com/shed3/investment-accountant/internal/transport/httpapi/middleware"
	"github.com/shed3/investment-accountant/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger             *logger.Logger
	AllowedOrigins     []string
	RateLimitRPS       float64
	RateLimitBurst     int
	TransactionHandler *handler.TransactionHandler
	LedgerHandler      *handler.LedgerHandler
	PositionHandler    *handler.PositionHandler
	PeriodHandler      *handler.PeriodHandler
	PriceHandler       *handler.PriceHandler
	HealthHandler      *handler.HealthHandler
	MetricsHandler     http.Handler
	MetricsMiddleware  func(http.Handler) http.Handler
	JWTMiddleware      func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	if cfg.MetricsMiddleware != nil {
		r.Use(cfg.MetricsMiddleware)
	}
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// API routes, behind JWT authentication when configured
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.JWTMiddleware != nil {
			r.Use(cfg.JWTMiddleware)
		}

		if cfg.TransactionHandler != nil {
			r.Post("/transactions", cfg.TransactionHandler.CreateTransactions)
			r.Get("/transactions", cfg.TransactionHandler.GetTransactions)
		}

		if cfg.LedgerHandler != nil {
			r.Route("/ledger", func(r chi.Router) {
				r.Get("/entries", cfg.LedgerHandler.GetEntries)
				r.Get("/summary", cfg.LedgerHandler.GetSummary)
				r.Get("/running", cfg.LedgerHandler.GetRunningTotals)
				r.Get("/equity-curve", cfg.LedgerHandler.GetEquityCurve)
			})
		}

		if cfg.PositionHandler != nil {
			r.Get("/positions", cfg.PositionHandler.GetPositions)
			r.Get("/positions/{symbol}", cfg.PositionHandler.GetPosition)
		}

		if cfg.PeriodHandler != nil {
			r.Get("/periods", cfg.PeriodHandler.GetPeriods)
			r.Post("/periods/close", cfg.PeriodHandler.ClosePeriods)
		}

		if cfg.PriceHandler != nil {
			r.Post("/prices", cfg.PriceHandler.RecordPrices)
		}
	})

	return r
}
