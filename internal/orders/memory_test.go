package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dynaclean/dynaflow/internal/dispatch"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
)

type memoryState struct {
	orders       map[int64]Order
	returns      []ReturnItem
	entries      []dispatch.Entry
	stock        map[string]int
	reservations map[string]stock.Reservation
	keys         map[string]string
	approvals    map[int64]int
	nextID       int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		orders:       make(map[int64]Order, len(s.orders)),
		returns:      append([]ReturnItem(nil), s.returns...),
		entries:      append([]dispatch.Entry(nil), s.entries...),
		stock:        make(map[string]int, len(s.stock)),
		reservations: make(map[string]stock.Reservation, len(s.reservations)),
		keys:         make(map[string]string, len(s.keys)),
		approvals:    make(map[int64]int, len(s.approvals)),
		nextID:       s.nextID,
	}
	for k, v := range s.orders {
		v.Items = append([]Item(nil), v.Items...)
		out.orders[k] = v
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	for k, v := range s.reservations {
		out.reservations[k] = v
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	for k, v := range s.approvals {
		out.approvals[k] = v
	}
	return out
}

// memoryRepo runs transactions one at a time and discards their writes on error.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		orders:       map[int64]Order{},
		stock:        map[string]int{},
		reservations: map[string]stock.Reservation{},
		keys:         map[string]string{},
		approvals:    map[int64]int{},
	}}
}

func stockKey(item, zone string) string { return item + "|" + zone }

func (r *memoryRepo) seedStock(item, zone string, qty int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.stock[stockKey(item, zone)] += qty
}

func (r *memoryRepo) stockOf(item, zone string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.stock[stockKey(item, zone)]
}

func (r *memoryRepo) reservationStatus(token string) stock.ReservationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.reservations[token].Status
}

func (r *memoryRepo) entriesFor(quote string) []dispatch.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatch.Entry
	for _, e := range r.state.entries {
		if e.QuoteNumber == quote {
			out = append(out, e)
		}
	}
	return out
}

func (r *memoryRepo) returnsFor(orderID int64) []ReturnItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ReturnItem
	for _, it := range r.state.returns {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (r *memoryRepo) recordApproval(orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.approvals[orderID]++
}

func (r *memoryRepo) approvalsFor(orderID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.approvals[orderID]
}

// mutate edits a stored order directly.
func (r *memoryRepo) mutate(id int64, fn func(*Order)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.state.orders[id]
	fn(&o)
	r.state.orders[id] = o
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.state.orders {
		if filter.Stage != "" && o.Stage() != filter.Stage {
			continue
		}
		if filter.BookingBy != "" && o.BookingBy != filter.BookingBy {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	o, ok := tx.state.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (tx *memoryTx) FindByQuote(ctx context.Context, quoteNumber string) (Order, error) {
	for _, o := range tx.state.orders {
		if o.QuoteNumber == quoteNumber {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (tx *memoryTx) Insert(ctx context.Context, o Order) (Order, error) {
	tx.state.nextID++
	o.ID = tx.state.nextID
	for i := range o.Items {
		tx.state.nextID++
		o.Items[i].ID = tx.state.nextID
	}
	tx.state.orders[o.ID] = o
	return o, nil
}

func (tx *memoryTx) Update(ctx context.Context, o Order) error {
	if _, ok := tx.state.orders[o.ID]; !ok {
		return ErrNotFound
	}
	tx.state.orders[o.ID] = o
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, id int64) error {
	if _, ok := tx.state.orders[id]; !ok {
		return ErrNotFound
	}
	delete(tx.state.orders, id)
	return nil
}

func (tx *memoryTx) InsertReturnItems(ctx context.Context, items []ReturnItem) error {
	tx.state.returns = append(tx.state.returns, items...)
	return nil
}

func (tx *memoryTx) DeleteReturnItems(ctx context.Context, orderID int64) (int64, error) {
	kept := tx.state.returns[:0]
	var n int64
	for _, it := range tx.state.returns {
		if it.OrderID == orderID {
			n++
			continue
		}
		kept = append(kept, it)
	}
	tx.state.returns = kept
	return n, nil
}

func (tx *memoryTx) SumReturned(ctx context.Context, orderID int64) (map[string]int, error) {
	out := map[string]int{}
	for _, it := range tx.state.returns {
		if it.OrderID == orderID {
			out[it.ItemCode] += it.Quantity
		}
	}
	return out, nil
}

func (tx *memoryTx) DeleteApprovals(ctx context.Context, orderID int64) (int64, error) {
	n := int64(tx.state.approvals[orderID])
	delete(tx.state.approvals, orderID)
	return n, nil
}

func (tx *memoryTx) ClaimIdempotencyKey(ctx context.Context, key, module, fingerprint string) error {
	k := module + "|" + key
	stored, ok := tx.state.keys[k]
	if !ok {
		tx.state.keys[k] = fingerprint
		return nil
	}
	if stored != fingerprint {
		return shared.ErrIdempotencyConflict
	}
	return shared.ErrIdempotencyReplay
}

func (tx *memoryTx) Ledger() StockLedger { return (*memoryLedger)(tx) }

func (tx *memoryTx) Dispatch() DispatchLog { return (*memoryDispatch)(tx) }

type memoryLedger memoryTx

func (l *memoryLedger) Reserve(ctx context.Context, in stock.ReserveInput) (stock.Reservation, bool, error) {
	res, ok := l.state.reservations[in.Token]
	if ok && res.Status != stock.ReservationReleased {
		return res, true, nil
	}
	k := stockKey(in.ItemCode, in.Zone)
	if l.state.stock[k] < in.Quantity {
		return stock.Reservation{}, false, shared.ErrInsufficientStock
	}
	l.state.stock[k] -= in.Quantity
	if !ok {
		res = stock.Reservation{ID: uuid.New(), Token: in.Token, ItemCode: in.ItemCode, Zone: in.Zone, Quantity: in.Quantity, Reference: in.Reference}
	}
	res.Status = stock.ReservationActive
	l.state.reservations[in.Token] = res
	return res, false, nil
}

func (l *memoryLedger) ActiveReservations(ctx context.Context, reference string) ([]stock.Reservation, error) {
	var out []stock.Reservation
	for _, res := range l.state.reservations {
		if res.Reference == reference && res.Status == stock.ReservationActive {
			out = append(out, res)
		}
	}
	return out, nil
}

func (l *memoryLedger) ConsumeReservations(ctx context.Context, reference string) (int, error) {
	return l.setStatus(reference, stock.ReservationConsumed, false), nil
}

func (l *memoryLedger) ReleaseReservations(ctx context.Context, reference string) (int, error) {
	return l.setStatus(reference, stock.ReservationReleased, true), nil
}

func (l *memoryLedger) setStatus(reference string, status stock.ReservationStatus, restock bool) int {
	n := 0
	for token, res := range l.state.reservations {
		if res.Reference != reference || res.Status != stock.ReservationActive {
			continue
		}
		if restock {
			l.state.stock[stockKey(res.ItemCode, res.Zone)] += res.Quantity
		}
		res.Status = status
		l.state.reservations[token] = res
		n++
	}
	return n
}

func (l *memoryLedger) RecordReturn(ctx context.Context, itemCode, zone string, qty int, reference, actor string) error {
	l.state.stock[stockKey(itemCode, zone)] += qty
	return nil
}

type memoryDispatch memoryTx

func (d *memoryDispatch) Insert(ctx context.Context, e dispatch.Entry) (dispatch.Entry, error) {
	d.state.nextID++
	e.ID = d.state.nextID
	d.state.entries = append(d.state.entries, e)
	return e, nil
}

func (d *memoryDispatch) CountSerialized(ctx context.Context, quoteNumber string) (int, error) {
	n := 0
	for _, e := range d.state.entries {
		if e.QuoteNumber == quoteNumber && e.HasSerial() {
			n++
		}
	}
	return n, nil
}

func (d *memoryDispatch) DeleteByQuote(ctx context.Context, quoteNumber string) (int64, error) {
	kept := d.state.entries[:0]
	var n int64
	for _, e := range d.state.entries {
		if e.QuoteNumber == quoteNumber {
			n++
			continue
		}
		kept = append(kept, e)
	}
	d.state.entries = kept
	return n, nil
}
