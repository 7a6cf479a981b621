package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shed3/investment-accountant/internal/ledger"
	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
)

// PeriodService defines the period operations needed by PeriodHandler
type PeriodService interface {
	ClosePeriods(ctx context.Context, until time.Time) ([]ledger.Entry, error)
	Period() (closed int, next time.Time, started bool)
}

// PeriodHandler closes accounting periods
type PeriodHandler struct {
	service PeriodService
}

// NewPeriodHandler creates a new period handler
func NewPeriodHandler(service PeriodService) *PeriodHandler {
	return &PeriodHandler{service: service}
}

// ClosePeriodsRequest optionally bounds the close; it defaults to now
type ClosePeriodsRequest struct {
	Until string `json:"until,omitempty"`
}

// PeriodResponse describes the period schedule state
type PeriodResponse struct {
	Closed       int              `json:"closed"`
	NextBoundary *string          `json:"next_boundary,omitempty"`
	Adjustments  []map[string]any `json:"adjustments,omitempty"`
}

// ClosePeriods handles POST /periods/close
func (h *PeriodHandler) ClosePeriods(w http.ResponseWriter, r *http.Request) {
	var req ClosePeriodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid request body")
		return
	}

	var until time.Time
	if req.Until != "" {
		var err error
		if until, err = time.Parse(time.RFC3339, req.Until); err != nil {
			respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid until format (use RFC3339)")
			return
		}
	}

	entries, err := h.service.ClosePeriods(r.Context(), until)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	resp := h.state()
	resp.Adjustments = entryMaps(entries)
	respondWithJSON(w, http.StatusOK, resp)
}

// GetPeriods handles GET /periods
func (h *PeriodHandler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.state())
}

func (h *PeriodHandler) state() PeriodResponse {
	closed, next, started := h.service.Period()
	resp := PeriodResponse{Closed: closed}
	if started {
		s := next.Format(time.RFC3339)
		resp.NextBoundary = &s
	}
	return resp
}
