package ledger

import (
	"context"
	"time"
)

// TransactionRecord is a raw transaction as accepted, kept so the book can
// be rebuilt by replaying records in order.
type TransactionRecord struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	RecordedAt time.Time      `json:"recorded_at"`
	RawData    map[string]any `json:"raw_data"`
}

// EntryFilters defines filters for listing persisted entries
type EntryFilters struct {
	Filter
	Limit  int
	Offset int
}

// Repository defines the interface for ledger persistence operations.
// Entries are append-only: there is no update or delete.
type Repository interface {
	// Transaction records
	CreateTransaction(ctx context.Context, rec *TransactionRecord) error
	ListTransactions(ctx context.Context) ([]*TransactionRecord, error)

	// Entry operations
	AppendEntries(ctx context.Context, txID string, entries []Entry) error
	ListEntries(ctx context.Context, filters EntryFilters) ([]Entry, error)

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
