package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindQuote(ctx context.Context, quoteNumber string) (QuoteState, error)
	FindQuoteByOrderID(ctx context.Context, orderID int64) (QuoteState, error)
	ListByQuote(ctx context.Context, quoteNumber string) ([]Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records and reads dispatch entries.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	godowns shared.LocationSet
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService builds Service for the configured godowns.
func NewService(repo RepositoryPort, audit AuditPort, godowns []string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		godowns: shared.NewLocationSet(godowns),
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Prepare validates input and returns the entry to persist. It does not check
// that the quote exists; callers holding the order row already know it does.
func (s *Service) Prepare(in EntryInput) (Entry, error) {
	quote := strings.TrimSpace(in.QuoteNumber)
	if quote == "" {
		return Entry{}, shared.Validationf("quote number required")
	}
	itemCode := strings.TrimSpace(in.ItemCode)
	if itemCode == "" {
		return Entry{}, shared.Validationf("item code required")
	}
	godown, ok := s.godowns.Resolve(in.Godown)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownGodown, in.Godown)
	}
	accessories := make(map[string]bool, len(in.Accessories))
	for name, checked := range in.Accessories {
		if name = strings.TrimSpace(name); name != "" {
			accessories[name] = checked
		}
	}
	photos := make([]string, 0, len(in.Photos))
	for _, p := range in.Photos {
		if p = strings.TrimSpace(p); p != "" {
			photos = append(photos, p)
		}
	}
	now := s.clock()
	return Entry{
		QuoteNumber: quote,
		ItemName:    strings.TrimSpace(in.ItemName),
		ItemCode:    itemCode,
		SerialNo:    optionalSerial(in.SerialNo),
		Remarks:     strings.TrimSpace(in.Remarks),
		Photos:      photos,
		Godown:      godown,
		Accessories: accessories,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AddEntry records a dispatch entry against an existing quote.
func (s *Service) AddEntry(ctx context.Context, in EntryInput, actor string) (Entry, error) {
	entry, err := s.Prepare(in)
	if err != nil {
		return Entry{}, err
	}
	var out Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, err := tx.LockQuote(ctx, entry.QuoteNumber)
		if err != nil {
			return err
		}
		if quote.Installed {
			return ErrImmutable
		}
		out, err = tx.Insert(ctx, entry)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, actor, "dispatch.add", out)
	return out, nil
}

// ListForOrder returns the entries of a quote in creation order.
func (s *Service) ListForOrder(ctx context.Context, quoteNumber string) ([]Entry, error) {
	quoteNumber = strings.TrimSpace(quoteNumber)
	if quoteNumber == "" {
		return nil, shared.Validationf("quote_number required")
	}
	if _, err := s.repo.FindQuote(ctx, quoteNumber); err != nil {
		return nil, err
	}
	return s.repo.ListByQuote(ctx, quoteNumber)
}

// ListByOrderID resolves the order's quote number and lists its entries.
func (s *Service) ListByOrderID(ctx context.Context, orderID int64) ([]Entry, error) {
	if orderID <= 0 {
		return nil, shared.Validationf("order_id must be positive")
	}
	quote, err := s.repo.FindQuoteByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByQuote(ctx, quote.QuoteNumber)
}

// UpdateSerial rebinds the serial of an entry. Once the owning order is
// installed, serials are frozen.
func (s *Service) UpdateSerial(ctx context.Context, entryID int64, serial, actor string) (Entry, error) {
	if entryID <= 0 {
		return Entry{}, shared.Validationf("entry id must be positive")
	}
	var out Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		quote, err := tx.LockQuote(ctx, entry.QuoteNumber)
		if err != nil {
			return err
		}
		if quote.Installed {
			return ErrImmutable
		}
		now := s.clock()
		entry.SerialNo = optionalSerial(serial)
		entry.UpdatedAt = now
		if err := tx.UpdateSerial(ctx, entry.ID, entry.SerialNo, now); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, actor, "dispatch.serial", out)
	return out, nil
}

func (s *Service) record(ctx context.Context, actor, action string, e Entry) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"quote_number": e.QuoteNumber, "item_code": e.ItemCode, "godown": e.Godown}
	if e.SerialNo != nil {
		meta["serial_no"] = *e.SerialNo
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "dispatch", EntityID: fmt.Sprintf("%d", e.ID), Meta: meta}); err != nil {
		s.logger.Warn("dispatch audit", slog.String("action", action), slog.Any("error", err))
	}
}
