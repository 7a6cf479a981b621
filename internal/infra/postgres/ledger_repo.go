package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/ledger"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// LedgerRepository implements ledger.Repository using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// Transaction records

// CreateTransaction stores a raw transaction record
func (r *LedgerRepository) CreateTransaction(ctx context.Context, rec *ledger.TransactionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("invalid transaction record: id is required")
	}

	rawDataJSON, err := json.Marshal(rec.RawData)
	if err != nil {
		return fmt.Errorf("failed to marshal raw data: %w", err)
	}

	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (id, type, occurred_at, recorded_at, raw_data)
		VALUES ($1, $2, $3, $4, $5)
	`

	q := r.getQueryer(ctx)
	_, err = q.Exec(ctx, query, rec.ID, rec.Type, rec.OccurredAt, recordedAt, rawDataJSON)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("transaction %s: %w", rec.ID, ledger.ErrDuplicateRecord)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// ListTransactions returns every record in insertion order
func (r *LedgerRepository) ListTransactions(ctx context.Context) ([]*ledger.TransactionRecord, error) {
	query := `
		SELECT id, type, occurred_at, recorded_at, raw_data
		FROM transactions
		ORDER BY seq ASC
	`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []*ledger.TransactionRecord
	for rows.Next() {
		var rec ledger.TransactionRecord
		var rawDataJSON []byte

		if err := rows.Scan(&rec.ID, &rec.Type, &rec.OccurredAt, &rec.RecordedAt, &rawDataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if len(rawDataJSON) > 0 {
			dec := json.NewDecoder(bytes.NewReader(rawDataJSON))
			dec.UseNumber()
			if err := dec.Decode(&rec.RawData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal raw data: %w", err)
			}
		}
		rec.OccurredAt = rec.OccurredAt.UTC()
		rec.RecordedAt = rec.RecordedAt.UTC()

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return records, nil
}

// Entry operations

// AppendEntries stores entries under txID, keeping their order
func (r *LedgerRepository) AppendEntries(ctx context.Context, txID string, entries []ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (tx_id, entry_index, id, account_type, account, sub_account, timestamp, symbol, side, type, quantity, value, quote, close_quote)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	q := r.getQueryer(ctx)
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("invalid entry %d of %s: %w", i, txID, err)
		}

		_, err := q.Exec(ctx, query,
			txID,
			i,
			e.ID,
			string(e.AccountType),
			e.Account,
			e.SubAccount,
			e.Timestamp,
			e.Symbol,
			string(e.Side),
			e.Type,
			e.Quantity.String(), // decimals travel as strings (NUMERIC in DB)
			e.Value.StringFixed(2),
			e.Quote.String(),
			e.CloseQuote.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry %d of %s: %w", i, txID, err)
		}
	}

	return nil
}

// ListEntries returns persisted entries matching filters in append order
func (r *LedgerRepository) ListEntries(ctx context.Context, filters ledger.EntryFilters) ([]ledger.Entry, error) {
	query := `
		SELECT id, account_type, account, sub_account, timestamp, symbol, side, type, quantity::text, value::text, quote::text, close_quote::text
		FROM ledger_entries
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	argPos := 1
	where := func(clause string, v interface{}) {
		query += fmt.Sprintf(" AND "+clause, argPos)
		args = append(args, v)
		argPos++
	}

	f := filters.Filter
	if f.AccountType != "" {
		where("account_type = $%d", string(f.AccountType))
	}
	if f.Account != "" {
		where("account = $%d", f.Account)
	}
	if f.SubAccount != "" {
		where("sub_account = $%d", f.SubAccount)
	}
	if f.Symbol != "" {
		where("symbol = UPPER($%d)", f.Symbol)
	}
	if f.Type != "" {
		where("type = $%d", f.Type)
	}
	if f.ID != "" {
		where("id = $%d", f.ID)
	}
	if !f.From.IsZero() {
		where("timestamp >= $%d", f.From)
	}
	if !f.To.IsZero() {
		where("timestamp <= $%d", f.To)
	}

	query += " ORDER BY seq ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	var accountType, side string
	var qty, value, quote, closeQuote string

	err := row.Scan(
		&e.ID,
		&accountType,
		&e.Account,
		&e.SubAccount,
		&e.Timestamp,
		&e.Symbol,
		&side,
		&e.Type,
		&qty,
		&value,
		&quote,
		&closeQuote,
	)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.AccountType = ledger.AccountType(accountType)
	e.Side = ledger.Side(side)

	// Parse NUMERIC columns from their text form
	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&e.Quantity, qty},
		{&e.Value, value},
		{&e.Quote, quote},
		{&e.CloseQuote, closeQuote},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(a.src)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("failed to parse entry amount %q: %w", a.src, err)
		}
		*a.dst = d
	}

	return ledger.NewEntry(e), nil
}

// Transaction management using pgx transactions
// Transactions are stored in context using txContextKey

type ctxKey string

const txContextKey ctxKey = "ledger_tx"

// BeginTx starts a new database transaction and stores it in the context
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		// Ignore already rolled back or committed errors
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (r *LedgerRepository) getTxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise returns the pool
func (r *LedgerRepository) getQueryer(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}
