package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dynaclean/dynaflow/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetAvailability reads zone quantities and the total from one snapshot.
func (r *Repository) GetAvailability(ctx context.Context, itemCode string) (Availability, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Availability{}, err
	}
	defer tx.Rollback(ctx)

	out := Availability{ItemCode: itemCode, Zones: map[string]int{}}
	rows, err := tx.Query(ctx, `SELECT zone, quantity FROM stock_zone_summary WHERE item_code=$1 ORDER BY zone`, itemCode)
	if err != nil {
		return Availability{}, err
	}
	for rows.Next() {
		var zone string
		var qty int
		if err := rows.Scan(&zone, &qty); err != nil {
			rows.Close()
			return Availability{}, err
		}
		out.Zones[zone] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Availability{}, err
	}
	err = tx.QueryRow(ctx, `SELECT total_quantity FROM stock_summary WHERE item_code=$1`, itemCode).Scan(&out.Total)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Availability{}, err
	}
	return out, nil
}

// ListMovements returns ledger rows newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	where := goqu.Ex{"item_code": filter.ItemCode}
	if filter.Zone != "" {
		where["zone"] = filter.Zone
	}
	ds := db.Dialect.From("stock_movements").Prepared(true).
		Select("id", "item_code", "zone", "delta", "kind", "reference", "note", "created_by", "created_at").
		Where(where).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit))
	rows, err := db.Query(ctx, r.pool, ds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ItemCode, &m.Zone, &m.Delta, &kind, &m.Reference, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

const reservationColumns = `id, request_token, item_code, zone, quantity, reference, status, created_at, updated_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	var status string
	err := row.Scan(&res.ID, &res.Token, &res.ItemCode, &res.Zone, &res.Quantity, &res.Reference, &status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	res.Status = ReservationStatus(status)
	return res, nil
}

func (r *txRepo) GetReservationByToken(ctx context.Context, token string) (Reservation, error) {
	return scanReservation(r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE request_token=$1 FOR UPDATE`, token))
}

func (r *txRepo) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return scanReservation(r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) ListActiveReservationsForUpdate(ctx context.Context, reference string) ([]Reservation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+reservationColumns+` FROM stock_reservations
WHERE reference=$1 AND status='active' ORDER BY created_at, id FOR UPDATE`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertReservation(ctx context.Context, res Reservation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_reservations (`+reservationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.ID, res.Token, res.ItemCode, res.Zone, res.Quantity, res.Reference, string(res.Status), res.CreatedAt, res.UpdatedAt)
	if db.IsUniqueViolation(err) {
		// Another request inserted the token first. A retry replays it, and
		// once retries run out the caller sees a token conflict.
		return fmt.Errorf("%w: %w", db.ErrTxConflict, ErrTokenMismatch)
	}
	return err
}

func (r *txRepo) SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *txRepo) DecrementZone(ctx context.Context, itemCode, zone string, qty int) (bool, error) {
	ds := db.Dialect.Update("stock_zone_summary").Prepared(true).
		Set(goqu.Record{
			"quantity":   goqu.L("quantity - ?", qty),
			"updated_at": goqu.L("NOW()"),
		}).
		Where(goqu.Ex{"item_code": itemCode, "zone": zone}).
		Where(goqu.C("quantity").Gte(qty))
	tag, err := db.Exec(ctx, r.tx, ds)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) IncrementZone(ctx context.Context, itemCode, zone string, qty int) error {
	ds := db.Dialect.Insert("stock_zone_summary").Prepared(true).
		Rows(goqu.Record{"item_code": itemCode, "zone": zone, "quantity": qty, "updated_at": goqu.L("NOW()")}).
		OnConflict(goqu.DoUpdate("item_code, zone", goqu.Record{
			"quantity":   goqu.L("stock_zone_summary.quantity + EXCLUDED.quantity"),
			"updated_at": goqu.L("NOW()"),
		}))
	_, err := db.Exec(ctx, r.tx, ds)
	return err
}

func (r *txRepo) AdjustTotal(ctx context.Context, itemCode string, delta int) error {
	ds := db.Dialect.Insert("stock_summary").Prepared(true).
		Rows(goqu.Record{"item_code": itemCode, "total_quantity": delta, "updated_at": goqu.L("NOW()")}).
		OnConflict(goqu.DoUpdate("item_code", goqu.Record{
			"total_quantity": goqu.L("stock_summary.total_quantity + EXCLUDED.total_quantity"),
			"updated_at":     goqu.L("NOW()"),
		}))
	_, err := db.Exec(ctx, r.tx, ds)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_code, zone, delta, kind, reference, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.ItemCode, m.Zone, m.Delta, string(m.Kind), m.Reference, m.Note, m.CreatedBy, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) LockSummaries(ctx context.Context) error {
	_, err := r.tx.Exec(ctx, `LOCK TABLE stock_zone_summary, stock_summary IN SHARE ROW EXCLUSIVE MODE`)
	return err
}

func (r *txRepo) AggregateMovements(ctx context.Context) ([]ZoneQuantity, error) {
	return r.zoneRows(ctx, `SELECT item_code, zone, COALESCE(SUM(delta), 0)::int FROM stock_movements GROUP BY item_code, zone`)
}

func (r *txRepo) ListZoneSummaries(ctx context.Context) ([]ZoneQuantity, error) {
	return r.zoneRows(ctx, `SELECT item_code, zone, quantity FROM stock_zone_summary`)
}

func (r *txRepo) zoneRows(ctx context.Context, query string) ([]ZoneQuantity, error) {
	rows, err := r.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ZoneQuantity
	for rows.Next() {
		var z ZoneQuantity
		if err := rows.Scan(&z.ItemCode, &z.Zone, &z.Quantity); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (r *txRepo) ListTotals(ctx context.Context) (map[string]int, error) {
	rows, err := r.tx.Query(ctx, `SELECT item_code, total_quantity FROM stock_summary`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var item string
		var qty int
		if err := rows.Scan(&item, &qty); err != nil {
			return nil, err
		}
		out[item] = qty
	}
	return out, rows.Err()
}

func (r *txRepo) SetZoneQuantity(ctx context.Context, itemCode, zone string, qty int) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_zone_summary (item_code, zone, quantity, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT (item_code, zone) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`, itemCode, zone, qty)
	return err
}

func (r *txRepo) SetTotal(ctx context.Context, itemCode string, qty int) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_summary (item_code, total_quantity, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (item_code) DO UPDATE SET total_quantity = EXCLUDED.total_quantity, updated_at = NOW()`, itemCode, qty)
	return err
}
