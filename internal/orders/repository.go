package orders

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dynaclean/dynaflow/internal/dispatch"
	"github.com/dynaclean/dynaflow/internal/platform/db"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockLedger is the slice of the stock ledger used inside order transactions.
type StockLedger interface {
	Reserve(ctx context.Context, in stock.ReserveInput) (stock.Reservation, bool, error)
	ActiveReservations(ctx context.Context, reference string) ([]stock.Reservation, error)
	ConsumeReservations(ctx context.Context, reference string) (int, error)
	ReleaseReservations(ctx context.Context, reference string) (int, error)
	RecordReturn(ctx context.Context, itemCode, zone string, qty int, reference, actor string) error
}

// DispatchLog is the slice of the dispatch tracker used inside order transactions.
type DispatchLog interface {
	Insert(ctx context.Context, e dispatch.Entry) (dispatch.Entry, error)
	CountSerialized(ctx context.Context, quoteNumber string) (int, error)
	DeleteByQuote(ctx context.Context, quoteNumber string) (int64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	FindByQuote(ctx context.Context, quoteNumber string) (Order, error)
	Insert(ctx context.Context, o Order) (Order, error)
	Update(ctx context.Context, o Order) error
	Delete(ctx context.Context, id int64) error
	InsertReturnItems(ctx context.Context, items []ReturnItem) error
	DeleteReturnItems(ctx context.Context, orderID int64) (int64, error)
	SumReturned(ctx context.Context, orderID int64) (map[string]int, error)
	DeleteApprovals(ctx context.Context, orderID int64) (int64, error)
	ClaimIdempotencyKey(ctx context.Context, key, module, fingerprint string) error
	Ledger() StockLedger
	Dispatch() DispatchLog
}

// errQuoteTaken signals that Insert lost the race for a quote number.
var errQuoteTaken = errors.New("orders: quote number taken")

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, quote_number, client_name, client_phone, client_email, company_name, delivery_location,
grand_total, created_by, booking_by, sales_status, account_status, admin_status, dispatch_status, delivery_status,
installation_status, approval_status, approval_remark, is_cancelled, is_returned, delivered_on, delivery_proof,
dispatched_at, installed_at, completed_at, created_at, updated_at`

var orderColumnList = []any{"id", "quote_number", "client_name", "client_phone", "client_email", "company_name",
	"delivery_location", "grand_total", "created_by", "booking_by", "sales_status", "account_status", "admin_status",
	"dispatch_status", "delivery_status", "installation_status", "approval_status", "approval_remark", "is_cancelled",
	"is_returned", "delivered_on", "delivery_proof", "dispatched_at", "installed_at", "completed_at", "created_at",
	"updated_at"}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var approval string
	err := row.Scan(&o.ID, &o.QuoteNumber, &o.ClientName, &o.ClientPhone, &o.ClientEmail, &o.CompanyName,
		&o.DeliveryLocation, &o.GrandTotal, &o.CreatedBy, &o.BookingBy, &o.SalesStatus, &o.AccountStatus,
		&o.AdminStatus, &o.DispatchStatus, &o.DeliveryStatus, &o.InstallationStatus, &approval, &o.ApprovalRemark,
		&o.IsCancelled, &o.IsReturned, &o.DeliveredOn, &o.DeliveryProof, &o.DispatchedAt, &o.InstalledAt,
		&o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.ApprovalStatus = ApprovalStatus(approval)
	return o, nil
}

func loadItems(ctx context.Context, q db.Querier, o *Order) error {
	rows, err := q.Query(ctx, `SELECT id, item_code, item_name, zone, quantity FROM order_items WHERE order_id=$1 ORDER BY line_order, id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ItemCode, &it.ItemName, &it.Zone, &it.Quantity); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func getOrder(ctx context.Context, q db.Querier, query string, arg any) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, query, arg))
	if err != nil {
		return Order{}, err
	}
	if err := loadItems(ctx, q, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Get returns an order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

// List returns a page of orders, newest first, and the number of matches.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	conds := filter.conditions()
	countDS := db.Dialect.From("orders").Prepared(true).Select(goqu.COUNT("*")).Where(conds...)
	sql, args, err := countDS.ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	ds := db.Dialect.From("orders").Prepared(true).
		Select(orderColumnList...).
		Where(conds...).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(page.PerPage)).
		Offset(uint(page.Offset()))
	rows, err := db.Query(ctx, r.pool, ds)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepo) FindByQuote(ctx context.Context, quoteNumber string) (Order, error) {
	return getOrder(ctx, r.tx, `SELECT `+orderColumns+` FROM orders WHERE quote_number=$1`, quoteNumber)
}

func (r *txRepo) Insert(ctx context.Context, o Order) (Order, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (quote_number, client_name, client_phone, client_email, company_name,
delivery_location, grand_total, created_by, booking_by, approval_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
ON CONFLICT (quote_number) DO NOTHING RETURNING id`,
		o.QuoteNumber, o.ClientName, o.ClientPhone, o.ClientEmail, o.CompanyName, o.DeliveryLocation,
		o.GrandTotal, o.CreatedBy, o.BookingBy, string(ApprovalPending), o.CreatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, errQuoteTaken
		}
		return Order{}, err
	}
	for i, it := range o.Items {
		if err := r.tx.QueryRow(ctx, `INSERT INTO order_items (order_id, item_code, item_name, zone, quantity, line_order)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, id, it.ItemCode, it.ItemName, it.Zone, it.Quantity, i).Scan(&o.Items[i].ID); err != nil {
			return Order{}, err
		}
	}
	return getOrder(ctx, r.tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *txRepo) Update(ctx context.Context, o Order) error {
	ds := db.Dialect.Update("orders").Prepared(true).
		Set(goqu.Record{
			"sales_status":        o.SalesStatus,
			"account_status":      o.AccountStatus,
			"admin_status":        o.AdminStatus,
			"dispatch_status":     o.DispatchStatus,
			"delivery_status":     o.DeliveryStatus,
			"installation_status": o.InstallationStatus,
			"approval_status":     string(o.ApprovalStatus),
			"approval_remark":     o.ApprovalRemark,
			"is_cancelled":        o.IsCancelled,
			"is_returned":         o.IsReturned,
			"delivered_on":        o.DeliveredOn,
			"delivery_proof":      o.DeliveryProof,
			"dispatched_at":       o.DispatchedAt,
			"installed_at":        o.InstalledAt,
			"completed_at":        o.CompletedAt,
			"updated_at":          o.UpdatedAt,
		}).
		Where(goqu.C("id").Eq(o.ID))
	tag, err := db.Exec(ctx, r.tx, ds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertReturnItems(ctx context.Context, items []ReturnItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]any, 0, len(items))
	for _, it := range items {
		it := it
		var serial *string
		if it.SerialNo != "" {
			serial = &it.SerialNo
		}
		rows = append(rows, goqu.Record{
			"order_id":   it.OrderID,
			"item_code":  it.ItemCode,
			"zone":       it.Zone,
			"quantity":   it.Quantity,
			"serial_no":  serial,
			"reason":     it.Reason,
			"created_by": it.CreatedBy,
			"created_at": it.CreatedAt,
		})
	}
	_, err := db.Exec(ctx, r.tx, db.Dialect.Insert("return_items").Prepared(true).Rows(rows...))
	return err
}

func (r *txRepo) DeleteReturnItems(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM return_items WHERE order_id=$1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SumReturned totals the quantities already returned per item code.
func (r *txRepo) SumReturned(ctx context.Context, orderID int64) (map[string]int, error) {
	rows, err := r.tx.Query(ctx, `SELECT item_code, COALESCE(SUM(quantity), 0) FROM return_items WHERE order_id=$1 GROUP BY item_code`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			code string
			qty  int
		)
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

func (r *txRepo) DeleteApprovals(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM approvals WHERE order_id=$1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) ClaimIdempotencyKey(ctx context.Context, key, module, fingerprint string) error {
	return shared.ClaimIdempotencyKey(ctx, r.tx, key, module, fingerprint)
}

func (r *txRepo) Ledger() StockLedger {
	return stock.NewTxLedger(stock.NewTxRepository(r.tx))
}

func (r *txRepo) Dispatch() DispatchLog {
	return dispatch.NewTxRepository(r.tx)
}
