package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TxRepository exposes transactional operations used by the ledger.
type TxRepository interface {
	GetReservationByToken(ctx context.Context, token string) (Reservation, error)
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error)
	ListActiveReservationsForUpdate(ctx context.Context, reference string) ([]Reservation, error)
	InsertReservation(ctx context.Context, r Reservation) error
	SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus, at time.Time) error

	// DecrementZone subtracts qty only when at least qty is available and
	// reports whether the row was updated.
	DecrementZone(ctx context.Context, itemCode, zone string, qty int) (bool, error)
	IncrementZone(ctx context.Context, itemCode, zone string, qty int) error
	AdjustTotal(ctx context.Context, itemCode string, delta int) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)

	LockSummaries(ctx context.Context) error
	AggregateMovements(ctx context.Context) ([]ZoneQuantity, error)
	ListZoneSummaries(ctx context.Context) ([]ZoneQuantity, error)
	ListTotals(ctx context.Context) (map[string]int, error)
	SetZoneQuantity(ctx context.Context, itemCode, zone string, qty int) error
	SetTotal(ctx context.Context, itemCode string, qty int) error
}

// TxLedger applies ledger operations inside a caller-owned transaction so other
// workflows (dispatch, cancellation, returns) stay atomic with their own writes.
type TxLedger struct {
	tx  TxRepository
	now func() time.Time
}

// NewTxLedger wraps a transactional repository.
func NewTxLedger(tx TxRepository) *TxLedger {
	return &TxLedger{tx: tx, now: func() time.Time { return time.Now().UTC() }}
}

// Apply writes a movement and moves the zone and total summaries by its delta.
func (l *TxLedger) Apply(ctx context.Context, m Movement) (Movement, error) {
	if err := m.Kind.checkDelta(m.Delta); err != nil {
		return Movement{}, err
	}
	if m.Delta < 0 {
		ok, err := l.tx.DecrementZone(ctx, m.ItemCode, m.Zone, -m.Delta)
		if err != nil {
			return Movement{}, err
		}
		if !ok {
			return Movement{}, insufficient(m.ItemCode, m.Zone, -m.Delta)
		}
	} else {
		if err := l.tx.IncrementZone(ctx, m.ItemCode, m.Zone, m.Delta); err != nil {
			return Movement{}, err
		}
	}
	if err := l.tx.AdjustTotal(ctx, m.ItemCode, m.Delta); err != nil {
		return Movement{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = l.now()
	}
	id, err := l.tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	return m, nil
}

// Reserve claims quantity for in.Token. A known token with the same request is
// returned as-is with replayed set; a known token with a different request fails.
// A released token is taken again, so a cancelled and reopened order can
// reserve under its original tokens.
func (l *TxLedger) Reserve(ctx context.Context, in ReserveInput) (Reservation, bool, error) {
	existing, err := l.tx.GetReservationByToken(ctx, in.Token)
	switch {
	case err == nil:
		if !existing.sameRequest(in) {
			return Reservation{}, false, ErrTokenMismatch
		}
		if existing.Status != ReservationReleased {
			return existing, true, nil
		}
		return l.renew(ctx, existing)
	case !errors.Is(err, ErrReservationNotFound):
		return Reservation{}, false, err
	}

	now := l.now()
	if _, err := l.Apply(ctx, Movement{
		ItemCode:  in.ItemCode,
		Zone:      in.Zone,
		Delta:     -in.Quantity,
		Kind:      MovementReserve,
		Reference: in.Reference,
		Note:      "reservation " + in.Token,
		CreatedAt: now,
	}); err != nil {
		return Reservation{}, false, err
	}
	res := Reservation{
		ID:        uuid.New(),
		Token:     in.Token,
		ItemCode:  in.ItemCode,
		Zone:      in.Zone,
		Quantity:  in.Quantity,
		Reference: in.Reference,
		Status:    ReservationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.tx.InsertReservation(ctx, res); err != nil {
		return Reservation{}, false, err
	}
	return res, false, nil
}

func (l *TxLedger) renew(ctx context.Context, res Reservation) (Reservation, bool, error) {
	res, err := l.tx.GetReservationForUpdate(ctx, res.ID)
	if err != nil {
		return Reservation{}, false, err
	}
	if res.Status != ReservationReleased {
		return res, true, nil
	}
	now := l.now()
	if _, err := l.Apply(ctx, Movement{
		ItemCode:  res.ItemCode,
		Zone:      res.Zone,
		Delta:     -res.Quantity,
		Kind:      MovementReserve,
		Reference: res.Reference,
		Note:      "reservation " + res.Token,
		CreatedAt: now,
	}); err != nil {
		return Reservation{}, false, err
	}
	if err := l.tx.SetReservationStatus(ctx, res.ID, ReservationActive, now); err != nil {
		return Reservation{}, false, err
	}
	res.Status = ReservationActive
	res.UpdatedAt = now
	return res, false, nil
}

// Release returns a reservation's quantity to its zone. Releasing twice is a no-op.
func (l *TxLedger) Release(ctx context.Context, id uuid.UUID) (Reservation, error) {
	res, err := l.tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	switch res.Status {
	case ReservationReleased:
		return res, nil
	case ReservationConsumed:
		return Reservation{}, ErrReservationConsumed
	}
	if err := l.release(ctx, &res); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (l *TxLedger) release(ctx context.Context, res *Reservation) error {
	now := l.now()
	if _, err := l.Apply(ctx, Movement{
		ItemCode:  res.ItemCode,
		Zone:      res.Zone,
		Delta:     res.Quantity,
		Kind:      MovementRelease,
		Reference: res.Reference,
		Note:      "release " + res.Token,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	if err := l.tx.SetReservationStatus(ctx, res.ID, ReservationReleased, now); err != nil {
		return err
	}
	res.Status = ReservationReleased
	res.UpdatedAt = now
	return nil
}

// ActiveReservations locks and returns the active reservations of a reference.
func (l *TxLedger) ActiveReservations(ctx context.Context, reference string) ([]Reservation, error) {
	return l.tx.ListActiveReservationsForUpdate(ctx, reference)
}

// ReleaseReservations releases every active reservation of a reference.
func (l *TxLedger) ReleaseReservations(ctx context.Context, reference string) (int, error) {
	active, err := l.tx.ListActiveReservationsForUpdate(ctx, reference)
	if err != nil {
		return 0, err
	}
	for i := range active {
		if err := l.release(ctx, &active[i]); err != nil {
			return 0, err
		}
	}
	return len(active), nil
}

// ConsumeReservations marks every active reservation of a reference as consumed.
// Quantity already left the zone at reservation time.
func (l *TxLedger) ConsumeReservations(ctx context.Context, reference string) (int, error) {
	active, err := l.tx.ListActiveReservationsForUpdate(ctx, reference)
	if err != nil {
		return 0, err
	}
	now := l.now()
	for _, res := range active {
		if err := l.tx.SetReservationStatus(ctx, res.ID, ReservationConsumed, now); err != nil {
			return 0, err
		}
	}
	return len(active), nil
}

// RecordReturn puts returned quantity back into a zone.
func (l *TxLedger) RecordReturn(ctx context.Context, itemCode, zone string, qty int, reference, actor string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	_, err := l.Apply(ctx, Movement{
		ItemCode:  itemCode,
		Zone:      zone,
		Delta:     qty,
		Kind:      MovementReturn,
		Reference: reference,
		Note:      "order return",
		CreatedBy: actor,
	})
	return err
}

// Rebuild recomputes every summary from the ledger and returns how many rows drifted.
func (l *TxLedger) Rebuild(ctx context.Context) (int, error) {
	if err := l.tx.LockSummaries(ctx); err != nil {
		return 0, fmt.Errorf("stock: lock summaries: %w", err)
	}
	ledger, err := l.tx.AggregateMovements(ctx)
	if err != nil {
		return 0, err
	}
	current, err := l.tx.ListZoneSummaries(ctx)
	if err != nil {
		return 0, err
	}
	totals, err := l.tx.ListTotals(ctx)
	if err != nil {
		return 0, err
	}

	type key struct{ item, zone string }
	want := make(map[key]int, len(ledger))
	wantTotals := make(map[string]int)
	for _, row := range ledger {
		want[key{row.ItemCode, row.Zone}] = row.Quantity
		wantTotals[row.ItemCode] += row.Quantity
	}
	for _, row := range current {
		k := key{row.ItemCode, row.Zone}
		if _, ok := want[k]; !ok {
			want[k] = 0
		}
		if _, ok := wantTotals[row.ItemCode]; !ok {
			wantTotals[row.ItemCode] = 0
		}
	}
	have := make(map[key]int, len(current))
	for _, row := range current {
		have[key{row.ItemCode, row.Zone}] = row.Quantity
	}

	drift := 0
	for k, qty := range want {
		if got, ok := have[k]; ok && got == qty {
			continue
		}
		if qty < 0 {
			return 0, fmt.Errorf("stock: ledger for %s/%s sums to %d", k.item, k.zone, qty)
		}
		if err := l.tx.SetZoneQuantity(ctx, k.item, k.zone, qty); err != nil {
			return 0, err
		}
		drift++
	}
	for item, qty := range wantTotals {
		if got, ok := totals[item]; ok && got == qty {
			continue
		}
		if err := l.tx.SetTotal(ctx, item, qty); err != nil {
			return 0, err
		}
		drift++
	}
	return drift, nil
}
