package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dynaclean/dynaflow/internal/platform/db"
)

type zoneKey struct{ item, zone string }

type memoryState struct {
	zones        map[zoneKey]int
	totals       map[string]int
	reservations map[uuid.UUID]Reservation
	movements    []Movement
	nextID       int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		zones:        make(map[zoneKey]int, len(s.zones)),
		totals:       make(map[string]int, len(s.totals)),
		reservations: make(map[uuid.UUID]Reservation, len(s.reservations)),
		movements:    append([]Movement(nil), s.movements...),
		nextID:       s.nextID,
	}
	for k, v := range s.zones {
		out.zones[k] = v
	}
	for k, v := range s.totals {
		out.totals[k] = v
	}
	for k, v := range s.reservations {
		out.reservations[k] = v
	}
	return out
}

// memoryRepo serialises transactions and restores the previous state when the
// callback fails. Retryable failures run the callback again like db.WithTx.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	reads int
	// race, when set, runs once before the next reservation insert against the
	// committed state, standing in for a concurrent transaction.
	race     func(committed *memoryState)
	attempts int
	// readGate, when set, blocks GetAvailability until it is closed;
	// readEntered is signalled as each read starts waiting.
	readGate    chan struct{}
	readEntered chan struct{}
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		zones:        map[zoneKey]int{},
		totals:       map[string]int{},
		reservations: map[uuid.UUID]Reservation{},
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for i := 0; i < 3; i++ {
		r.attempts++
		working := r.state.clone()
		err = fn(ctx, &memoryTx{repo: r, state: &working})
		if err == nil {
			r.state = working
			return nil
		}
		if !db.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (r *memoryRepo) GetAvailability(ctx context.Context, itemCode string) (Availability, error) {
	if r.readGate != nil {
		select {
		case r.readEntered <- struct{}{}:
		default:
		}
		select {
		case <-r.readGate:
		case <-ctx.Done():
			return Availability{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	out := Availability{ItemCode: itemCode, Total: r.state.totals[itemCode], Zones: map[string]int{}}
	for k, v := range r.state.zones {
		if k.item == itemCode {
			out.Zones[k.zone] = v
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for i := len(r.state.movements) - 1; i >= 0; i-- {
		m := r.state.movements[i]
		if m.ItemCode != filter.ItemCode || (filter.Zone != "" && m.Zone != filter.Zone) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// seed writes summary rows directly, bypassing the ledger.
func (r *memoryRepo) seed(item, zone string, qty int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.zones[zoneKey{item, zone}] += qty
	r.state.totals[item] += qty
}

func (r *memoryRepo) zone(item, zone string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.zones[zoneKey{item, zone}]
}

func (r *memoryRepo) total(item string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.totals[item]
}

func (r *memoryRepo) ledgerSum(item string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, m := range r.state.movements {
		if m.ItemCode == item {
			sum += m.Delta
		}
	}
	return sum
}

func (tx *memoryTx) GetReservationByToken(ctx context.Context, token string) (Reservation, error) {
	for _, res := range tx.state.reservations {
		if res.Token == token {
			return res, nil
		}
	}
	return Reservation{}, ErrReservationNotFound
}

func (tx *memoryTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	res, ok := tx.state.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

func (tx *memoryTx) ListActiveReservationsForUpdate(ctx context.Context, reference string) ([]Reservation, error) {
	var out []Reservation
	for _, res := range tx.state.reservations {
		if res.Reference == reference && res.Status == ReservationActive {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (tx *memoryTx) InsertReservation(ctx context.Context, res Reservation) error {
	if race := tx.repo.race; race != nil {
		tx.repo.race = nil
		race(&tx.repo.state)
	}
	for _, existing := range tx.repo.state.reservations {
		if existing.Token == res.Token {
			return fmt.Errorf("%w: %w", db.ErrTxConflict, ErrTokenMismatch)
		}
	}
	for _, existing := range tx.state.reservations {
		if existing.Token == res.Token {
			return ErrTokenMismatch
		}
	}
	tx.state.reservations[res.ID] = res
	return nil
}

func (tx *memoryTx) SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus, at time.Time) error {
	res, ok := tx.state.reservations[id]
	if !ok {
		return ErrReservationNotFound
	}
	res.Status = status
	res.UpdatedAt = at
	tx.state.reservations[id] = res
	return nil
}

func (tx *memoryTx) DecrementZone(ctx context.Context, itemCode, zone string, qty int) (bool, error) {
	k := zoneKey{itemCode, zone}
	if tx.state.zones[k] < qty {
		return false, nil
	}
	tx.state.zones[k] -= qty
	return true, nil
}

func (tx *memoryTx) IncrementZone(ctx context.Context, itemCode, zone string, qty int) error {
	tx.state.zones[zoneKey{itemCode, zone}] += qty
	return nil
}

func (tx *memoryTx) AdjustTotal(ctx context.Context, itemCode string, delta int) error {
	next := tx.state.totals[itemCode] + delta
	if next < 0 {
		return errors.New("total would go negative")
	}
	tx.state.totals[itemCode] = next
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.state.nextID++
	m.ID = tx.state.nextID
	tx.state.movements = append(tx.state.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) LockSummaries(ctx context.Context) error { return nil }

func (tx *memoryTx) AggregateMovements(ctx context.Context) ([]ZoneQuantity, error) {
	sums := map[zoneKey]int{}
	for _, m := range tx.state.movements {
		sums[zoneKey{m.ItemCode, m.Zone}] += m.Delta
	}
	out := make([]ZoneQuantity, 0, len(sums))
	for k, v := range sums {
		out = append(out, ZoneQuantity{ItemCode: k.item, Zone: k.zone, Quantity: v})
	}
	return out, nil
}

func (tx *memoryTx) ListZoneSummaries(ctx context.Context) ([]ZoneQuantity, error) {
	out := make([]ZoneQuantity, 0, len(tx.state.zones))
	for k, v := range tx.state.zones {
		out = append(out, ZoneQuantity{ItemCode: k.item, Zone: k.zone, Quantity: v})
	}
	return out, nil
}

func (tx *memoryTx) ListTotals(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(tx.state.totals))
	for k, v := range tx.state.totals {
		out[k] = v
	}
	return out, nil
}

func (tx *memoryTx) SetZoneQuantity(ctx context.Context, itemCode, zone string, qty int) error {
	tx.state.zones[zoneKey{itemCode, zone}] = qty
	return nil
}

func (tx *memoryTx) SetTotal(ctx context.Context, itemCode string, qty int) error {
	tx.state.totals[itemCode] = qty
	return nil
}
