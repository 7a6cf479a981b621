package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shed3/investment-accountant/internal/ledger"
	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
)

// LedgerService defines the read views needed by LedgerHandler
type LedgerService interface {
	Entries(f ledger.Filter) []ledger.Entry
	Summary(dims ...ledger.Dimension) []ledger.Summary
	RunningTotals(dims ...ledger.Dimension) []ledger.RunningRow
	EquityCurve(accountType ledger.AccountType, dims ...ledger.Dimension) ledger.Curve
}

// LedgerHandler serves the ledger views
type LedgerHandler struct {
	service LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(service LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// GetEntries handles GET /ledger/entries
func (h *LedgerHandler) GetEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	f := ledger.Filter{
		AccountType: ledger.AccountType(query.Get("account_type")),
		Account:     query.Get("account"),
		SubAccount:  query.Get("sub_account"),
		Symbol:      query.Get("symbol"),
		Type:        query.Get("type"),
		ID:          query.Get("id"),
	}
	if f.AccountType != "" && !f.AccountType.IsValid() {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid account_type")
		return
	}

	var err error
	if f.From, err = parseTimeParam(query.Get("from")); err != nil {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid from format (use RFC3339)")
		return
	}
	if f.To, err = parseTimeParam(query.Get("to")); err != nil {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid to format (use RFC3339)")
		return
	}

	entries := h.service.Entries(f)
	total := len(entries)

	// Pagination
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset > 0 {
		if offset > len(entries) {
			offset = len(entries)
		}
		entries = entries[offset:]
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entryMaps(entries),
		"total":   total,
	})
}

// GetSummary handles GET /ledger/summary
func (h *LedgerHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	dims, ok := dimensions(w, r, ledger.AccountDimensions)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"by":      dims,
		"summary": h.service.Summary(dims...),
	})
}

// GetRunningTotals handles GET /ledger/running
func (h *LedgerHandler) GetRunningTotals(w http.ResponseWriter, r *http.Request) {
	dims, ok := dimensions(w, r, ledger.AccountDimensions)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"by":   dims,
		"rows": h.service.RunningTotals(dims...),
	})
}

// GetEquityCurve handles GET /ledger/equity-curve
func (h *LedgerHandler) GetEquityCurve(w http.ResponseWriter, r *http.Request) {
	accountType := ledger.AccountType(r.URL.Query().Get("account_type"))
	if accountType != "" && !accountType.IsValid() {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid account_type")
		return
	}

	dims, ok := dimensions(w, r, []ledger.Dimension{ledger.DimSymbol})
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, h.service.EquityCurve(accountType, dims...))
}

// dimensions reads the "by" parameter, defaulting to def
func dimensions(w http.ResponseWriter, r *http.Request, def []ledger.Dimension) ([]ledger.Dimension, bool) {
	by := r.URL.Query().Get("by")
	if by == "" {
		return def, true
	}
	dims, err := ledger.ParseDimensions(by)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, err.Error())
		return nil, false
	}
	return dims, true
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
