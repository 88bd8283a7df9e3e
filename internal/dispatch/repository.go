package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dynaclean/dynaflow/internal/platform/db"
)

// Repository persists dispatch entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the tracker and by
// order transitions that record or remove dispatch rows.
type TxRepository interface {
	LockQuote(ctx context.Context, quoteNumber string) (QuoteState, error)
	GetForUpdate(ctx context.Context, id int64) (Entry, error)
	Insert(ctx context.Context, e Entry) (Entry, error)
	UpdateSerial(ctx context.Context, id int64, serial *string, at time.Time) error
	ListByQuote(ctx context.Context, quoteNumber string) ([]Entry, error)
	CountSerialized(ctx context.Context, quoteNumber string) (int, error)
	DeleteByQuote(ctx context.Context, quoteNumber string) (int64, error)
}

type txRepo struct {
	q db.Querier
}

// NewTxRepository binds dispatch statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// FindQuote resolves a quote number without locking.
func (r *Repository) FindQuote(ctx context.Context, quoteNumber string) (QuoteState, error) {
	return scanQuote(r.pool.QueryRow(ctx, `SELECT id, quote_number, installation_status = 1 FROM orders WHERE quote_number=$1`, quoteNumber))
}

// FindQuoteByOrderID resolves the quote number of an order.
func (r *Repository) FindQuoteByOrderID(ctx context.Context, orderID int64) (QuoteState, error) {
	return scanQuote(r.pool.QueryRow(ctx, `SELECT id, quote_number, installation_status = 1 FROM orders WHERE id=$1`, orderID))
}

// ListByQuote lists entries in creation order.
func (r *Repository) ListByQuote(ctx context.Context, quoteNumber string) ([]Entry, error) {
	return (&txRepo{q: r.pool}).ListByQuote(ctx, quoteNumber)
}

func scanQuote(row pgx.Row) (QuoteState, error) {
	var qs QuoteState
	if err := row.Scan(&qs.OrderID, &qs.QuoteNumber, &qs.Installed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuoteState{}, ErrQuoteNotFound
		}
		return QuoteState{}, err
	}
	return qs, nil
}

const entryColumns = `id, quote_number, item_name, item_code, serial_no, remarks, photos, godown, accessories, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var accessories []byte
	err := row.Scan(&e.ID, &e.QuoteNumber, &e.ItemName, &e.ItemCode, &e.SerialNo, &e.Remarks, &e.Photos, &e.Godown, &accessories, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.Accessories = map[string]bool{}
	if len(accessories) > 0 {
		if err := json.Unmarshal(accessories, &e.Accessories); err != nil {
			return Entry{}, err
		}
	}
	if e.Photos == nil {
		e.Photos = []string{}
	}
	return e, nil
}

func (r *txRepo) LockQuote(ctx context.Context, quoteNumber string) (QuoteState, error) {
	return scanQuote(r.q.QueryRow(ctx, `SELECT id, quote_number, installation_status = 1 FROM orders WHERE quote_number=$1 FOR SHARE`, quoteNumber))
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM dispatch WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) Insert(ctx context.Context, e Entry) (Entry, error) {
	accessories, err := json.Marshal(e.Accessories)
	if err != nil {
		return Entry{}, err
	}
	photos := e.Photos
	if photos == nil {
		photos = []string{}
	}
	return scanEntry(r.q.QueryRow(ctx, `INSERT INTO dispatch (quote_number, item_name, item_code, serial_no, remarks, photos, godown, accessories, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING `+entryColumns,
		e.QuoteNumber, e.ItemName, e.ItemCode, e.SerialNo, e.Remarks, photos, e.Godown, accessories, e.CreatedAt))
}

func (r *txRepo) UpdateSerial(ctx context.Context, id int64, serial *string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE dispatch SET serial_no=$2, updated_at=$3 WHERE id=$1`, id, serial, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) ListByQuote(ctx context.Context, quoteNumber string) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `SELECT `+entryColumns+` FROM dispatch WHERE quote_number=$1 ORDER BY created_at ASC, id ASC`, quoteNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepo) CountSerialized(ctx context.Context, quoteNumber string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch WHERE quote_number=$1 AND COALESCE(TRIM(serial_no), '') <> ''`, quoteNumber).Scan(&n)
	return n, err
}

func (r *txRepo) DeleteByQuote(ctx context.Context, quoteNumber string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM dispatch WHERE quote_number=$1`, quoteNumber)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
