package handler

import (
	"context"
	"net/http"
	"time"

	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
)

const (
	healthTimeout = 2 * time.Second
	version       = "1.0.0"
)

var startTime = time.Now()

// DatabasePinger is the ledger store
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// CachePinger is the price cache
type CachePinger interface {
	Health(ctx context.Context) error
}

// BookStatus reports how far the book has been closed
type BookStatus interface {
	Period() (closed int, next time.Time, started bool)
}

// HealthHandler serves liveness, readiness and dependency checks. The
// database gates readiness; the cache and book only inform.
type HealthHandler struct {
	db    DatabasePinger
	cache CachePinger
	book  BookStatus
}

// NewHealthHandler creates a new health handler. cache and book may be nil.
func NewHealthHandler(db DatabasePinger, cache CachePinger, book BookStatus) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, book: book}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks"`
	Book    *BookHealth       `json:"book,omitempty"`
}

// BookHealth is the period state of the in-memory book
type BookHealth struct {
	Started       bool   `json:"started"`
	ClosedPeriods int    `json:"closed_periods"`
	NextBoundary  string `json:"next_boundary,omitempty"`
}

// GetHealth handles GET /health
func GetHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(startTime).String(),
		Checks:  map[string]string{},
	})
}

// GetHealthDetailed handles GET /health/detailed
func (h *HealthHandler) GetHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(startTime).String(),
		Checks:  map[string]string{"api": "healthy"},
	}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		resp.Checks["database"] = "unhealthy: " + err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = "healthy"
	}

	if h.cache != nil {
		if err := h.cache.Health(ctx); err != nil {
			resp.Checks["cache"] = "unhealthy: " + err.Error()
			resp.Status = "degraded"
		} else {
			resp.Checks["cache"] = "healthy"
		}
	}

	if h.book != nil {
		closed, next, started := h.book.Period()
		resp.Book = &BookHealth{Started: started, ClosedPeriods: closed}
		if started {
			resp.Book.NextBoundary = next.Format(time.RFC3339)
		}
	}

	respondWithJSON(w, status, resp)
}

// GetReadiness handles GET /health/ready
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		respondWithError(w, http.StatusServiceUnavailable, apperr.ErrCodeServiceUnavailable, "database not ready")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetLiveness handles GET /health/live
func GetLiveness(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
