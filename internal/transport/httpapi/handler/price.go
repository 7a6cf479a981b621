package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/pricing"
	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
)

// PriceService defines the price operations needed by PriceHandler
type PriceService interface {
	RecordPrices(ctx context.Context, points []pricing.Point) error
}

// PriceHandler accepts price history
type PriceHandler struct {
	service PriceService
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(service PriceService) *PriceHandler {
	return &PriceHandler{service: service}
}

// PriceRequest is one price point; price is a decimal string or number
type PriceRequest struct {
	Symbol string          `json:"symbol"`
	Time   string          `json:"time"`
	Price  decimal.Decimal `json:"price"`
}

// RecordPricesRequest carries price points to store
type RecordPricesRequest struct {
	Prices []PriceRequest `json:"prices"`
}

// RecordPrices handles POST /prices
func (h *PriceHandler) RecordPrices(w http.ResponseWriter, r *http.Request) {
	var req RecordPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if len(req.Prices) == 0 {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "prices are required")
		return
	}

	points := make([]pricing.Point, 0, len(req.Prices))
	for _, p := range req.Prices {
		symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if symbol == "" {
			respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "symbol is required")
			return
		}
		at, err := time.Parse(time.RFC3339, p.Time)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid time format (use RFC3339)")
			return
		}
		if !p.Price.IsPositive() {
			respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "price must be positive")
			return
		}
		points = append(points, pricing.Point{Symbol: symbol, Time: at.UTC(), Price: p.Price})
	}

	if err := h.service.RecordPrices(r.Context(), points); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]int{"recorded": len(points)})
}
