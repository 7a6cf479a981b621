package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shed3/investment-accountant/internal/position"
	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
)

// PositionService defines the position reads needed by PositionHandler
type PositionService interface {
	Positions() []position.Snapshot
	Position(symbol string) (position.Snapshot, bool)
}

// PositionHandler serves position and tax lot views
type PositionHandler struct {
	service PositionService
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(service PositionService) *PositionHandler {
	return &PositionHandler{service: service}
}

// GetPositions handles GET /positions
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.service.Positions()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"total":     len(positions),
	})
}

// GetPosition handles GET /positions/{symbol}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	p, ok := h.service.Position(symbol)
	if !ok {
		respondWithAppError(w, apperr.NotFound("position "+symbol))
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}
