package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepo struct {
	mu      sync.Mutex
	quotes  map[string]QuoteState
	entries map[int64]Entry
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{quotes: map[string]QuoteState{}, entries: map[int64]Entry{}}
}

func (r *memoryRepo) addQuote(orderID int64, quote string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[quote] = QuoteState{OrderID: orderID, QuoteNumber: quote}
}

func (r *memoryRepo) install(quote string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.quotes[quote]
	q.Installed = true
	r.quotes[quote] = q
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Entry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.entries = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) FindQuote(ctx context.Context, quoteNumber string) (QuoteState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[quoteNumber]
	if !ok {
		return QuoteState{}, ErrQuoteNotFound
	}
	return q, nil
}

func (r *memoryRepo) FindQuoteByOrderID(ctx context.Context, orderID int64) (QuoteState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quotes {
		if q.OrderID == orderID {
			return q, nil
		}
	}
	return QuoteState{}, ErrQuoteNotFound
}

func (r *memoryRepo) ListByQuote(ctx context.Context, quoteNumber string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{repo: r}).ListByQuote(ctx, quoteNumber)
}

func (tx *memoryTx) LockQuote(ctx context.Context, quoteNumber string) (QuoteState, error) {
	q, ok := tx.repo.quotes[quoteNumber]
	if !ok {
		return QuoteState{}, ErrQuoteNotFound
	}
	return q, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Entry, error) {
	e, ok := tx.repo.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (tx *memoryTx) Insert(ctx context.Context, e Entry) (Entry, error) {
	tx.repo.nextID++
	e.ID = tx.repo.nextID
	tx.repo.entries[e.ID] = e
	return e, nil
}

func (tx *memoryTx) UpdateSerial(ctx context.Context, id int64, serial *string, at time.Time) error {
	e, ok := tx.repo.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.SerialNo = serial
	e.UpdatedAt = at
	tx.repo.entries[id] = e
	return nil
}

func (tx *memoryTx) ListByQuote(ctx context.Context, quoteNumber string) ([]Entry, error) {
	out := []Entry{}
	for _, e := range tx.repo.entries {
		if e.QuoteNumber == quoteNumber {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (tx *memoryTx) CountSerialized(ctx context.Context, quoteNumber string) (int, error) {
	n := 0
	for _, e := range tx.repo.entries {
		if e.QuoteNumber == quoteNumber && e.HasSerial() {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) DeleteByQuote(ctx context.Context, quoteNumber string) (int64, error) {
	var n int64
	for id, e := range tx.repo.entries {
		if e.QuoteNumber == quoteNumber {
			delete(tx.repo.entries, id)
			n++
		}
	}
	return n, nil
}
