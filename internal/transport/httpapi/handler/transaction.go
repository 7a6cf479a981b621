package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/module/accounting"
	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
	"github.com/shed3/investment-accountant/pkg/logger"
)

// maxIngestBatch caps the records accepted in one request
const maxIngestBatch = 10000

// TransactionService defines the accounting operations needed by TransactionHandler
type TransactionService interface {
	Ingest(ctx context.Context, raws []map[string]any) (*accounting.IngestResult, error)
	Transactions(ctx context.Context) ([]*ledger.TransactionRecord, error)
}

// TransactionHandler handles transaction ingestion requests
type TransactionHandler struct {
	service TransactionService
	logger  *logger.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(service TransactionService, log *logger.Logger) *TransactionHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &TransactionHandler{service: service, logger: log.WithComponent("transaction_handler")}
}

// CreateTransactionsRequest carries raw transaction records in any key style
type CreateTransactionsRequest struct {
	Transactions []map[string]any `json:"transactions"`
}

// CreateTransactionsResponse reports the booked records and their entries
type CreateTransactionsResponse struct {
	Processed int              `json:"processed"`
	Entries   []map[string]any `json:"entries"`
}

// IngestErrorResponse is the error body of POST /transactions. The first
// processed records of the batch, in time order, were committed.
type IngestErrorResponse struct {
	ErrorResponse
	Processed int              `json:"processed"`
	Entries   []map[string]any `json:"entries"`
}

// TransactionRecordResponse represents a stored transaction record
type TransactionRecordResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt string         `json:"occurred_at"`
	RecordedAt string         `json:"recorded_at"`
	RawData    map[string]any `json:"raw_data,omitempty"`
}

// CreateTransactions handles POST /transactions
func (h *TransactionHandler) CreateTransactions(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionsRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "invalid request body")
		return
	}

	if len(req.Transactions) == 0 {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "transactions are required")
		return
	}
	if len(req.Transactions) > maxIngestBatch {
		respondWithError(w, http.StatusBadRequest, apperr.ErrCodeInvalidInput, "too many transactions in one request")
		return
	}

	result, err := h.service.Ingest(r.Context(), req.Transactions)
	if err != nil {
		status, errResp := appErrorResponse(err)
		body := IngestErrorResponse{ErrorResponse: errResp, Entries: []map[string]any{}}
		if result != nil {
			body.Processed = result.Processed
			body.Entries = entryMaps(result.Entries)
		}
		if body.Processed > 0 {
			h.logger.WithContext(r.Context()).Warn("ingest stopped after partial commit", "processed", body.Processed, "error", err)
		}
		respondWithJSON(w, status, body)
		return
	}

	respondWithJSON(w, http.StatusCreated, CreateTransactionsResponse{
		Processed: result.Processed,
		Entries:   entryMaps(result.Entries),
	})
}

// GetTransactions handles GET /transactions
func (h *TransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Transactions(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	out := make([]TransactionRecordResponse, len(records))
	for i, rec := range records {
		out[i] = TransactionRecordResponse{
			ID:         rec.ID,
			Type:       rec.Type,
			OccurredAt: rec.OccurredAt.Format(time.RFC3339Nano),
			RecordedAt: rec.RecordedAt.Format(time.RFC3339Nano),
			RawData:    rec.RawData,
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": out,
		"total":        len(out),
	})
}

func entryMaps(entries []ledger.Entry) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = e.ToMap()
	}
	return out
}
