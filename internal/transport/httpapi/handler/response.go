package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shed3/investment-accountant/internal/bookkeeper"
	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/position"
	apperr "github.com/shed3/investment-accountant/internal/shared/errors"
	"github.com/shed3/investment-accountant/internal/transaction"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, apperr.ErrCodeInternal, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondWithAppError maps err to its transport code and status
func respondWithAppError(w http.ResponseWriter, err error) {
	status, body := appErrorResponse(err)
	respondWithJSON(w, status, body)
}

func appErrorResponse(err error) (int, ErrorResponse) {
	appErr := toAppError(err)
	msg := appErr.Message
	if appErr.Err != nil && appErr.Code != apperr.ErrCodeInternal {
		msg = appErr.Err.Error()
	}
	return statusFor(appErr.Code), ErrorResponse{Error: msg, Code: appErr.Code}
}

// toAppError classifies domain errors
func toAppError(err error) *apperr.AppError {
	if appErr := apperr.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, transaction.ErrUnknownTransactionType):
		return apperr.UnknownTransactionType(err)
	case errors.Is(err, transaction.ErrInvalidTransaction):
		return apperr.InvalidTransaction(err)
	case errors.Is(err, position.ErrInsufficientTaxLots):
		return apperr.InsufficientTaxLots(err)
	case errors.Is(err, ledger.ErrImbalancedEntrySet):
		return apperr.LedgerUnbalanced(err)
	case errors.Is(err, ledger.ErrInvalidEntry):
		return apperr.InvalidEntry(err)
	case errors.Is(err, bookkeeper.ErrRetroactiveTransaction):
		return apperr.Retroactive(err)
	case errors.Is(err, ledger.ErrDuplicateRecord):
		return apperr.Duplicate(err)
	}
	return apperr.Internal("internal server error", err)
}

func statusFor(code string) int {
	switch code {
	case apperr.ErrCodeBadRequest, apperr.ErrCodeInvalidInput, apperr.ErrCodeUnknownTransactionType:
		return http.StatusBadRequest
	case apperr.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.ErrCodeNotFound:
		return http.StatusNotFound
	case apperr.ErrCodeConflict:
		return http.StatusConflict
	case apperr.ErrCodeInsufficientTaxLots, apperr.ErrCodeLedgerUnbalanced, apperr.ErrCodeInvalidEntry:
		return http.StatusUnprocessableEntity
	case apperr.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
