package errors

import (
	"errors"
	"fmt"
)

// Error codes returned to API clients
const (
	ErrCodeBadRequest             = "BAD_REQUEST"
	ErrCodeInvalidInput           = "INVALID_INPUT"
	ErrCodeUnknownTransactionType = "UNKNOWN_TRANSACTION_TYPE"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeConflict               = "CONFLICT"
	ErrCodeInsufficientTaxLots    = "INSUFFICIENT_TAX_LOTS"
	ErrCodeLedgerUnbalanced       = "LEDGER_UNBALANCED"
	ErrCodeInvalidEntry           = "INVALID_ENTRY"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeInternal               = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
)

// AppError is a booking or request failure translated for API clients
type AppError struct {
	Code    string // stable code for clients
	Message string // human-readable message
	Err     error  // cause, kept for logs and errors.Is
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError without a cause
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to err
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

// InvalidTransaction reports a record missing a field or carrying a bad value
func InvalidTransaction(err error) *AppError {
	return Wrap(err, ErrCodeInvalidInput, "invalid transaction")
}

// UnknownTransactionType reports a record whose type could not be detected
func UnknownTransactionType(err error) *AppError {
	return Wrap(err, ErrCodeUnknownTransactionType, "transaction type could not be determined")
}

// InsufficientTaxLots reports a disposal larger than the open lots
func InsufficientTaxLots(err error) *AppError {
	return Wrap(err, ErrCodeInsufficientTaxLots, "not enough open tax lots to cover disposal")
}

func LedgerUnbalanced(err error) *AppError {
	return Wrap(err, ErrCodeLedgerUnbalanced, "entry set does not balance")
}

func InvalidEntry(err error) *AppError {
	return Wrap(err, ErrCodeInvalidEntry, "malformed ledger entry")
}

// Retroactive reports a transaction dated before the book's last booking or
// closed period
func Retroactive(err error) *AppError {
	return Wrap(err, ErrCodeConflict, "transaction is older than the book")
}

// Duplicate reports a transaction id that is already recorded
func Duplicate(err error) *AppError {
	return Wrap(err, ErrCodeConflict, "transaction already recorded")
}

// GetAppError extracts an AppError from err's chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
