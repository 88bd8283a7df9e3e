package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAvailability(ctx context.Context, itemCode string) (Availability, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts reservation outcomes.
type MetricsPort interface {
	ObserveReservation(result string)
}

// Service coordinates ledger operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	zones   shared.LocationSet
	logger  *slog.Logger
	reads   singleflight.Group
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Zones   []string
	Metrics MetricsPort
	Logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		metrics: cfg.Metrics,
		zones:   shared.NewLocationSet(cfg.Zones),
		logger:  logger,
	}
}

// Zones returns the recognised zone names.
func (s *Service) Zones() []string {
	return s.zones.Names()
}

// ResolveZone canonicalises zone or fails with ErrInvalidZone.
func (s *Service) ResolveZone(zone string) (string, error) {
	canonical, ok := s.zones.Resolve(zone)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	return canonical, nil
}

// Reserve holds quantity for a single request token.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	out, err := s.ReserveAll(ctx, []ReserveInput{input})
	if err != nil {
		return Reservation{}, err
	}
	return out[0], nil
}

// ReserveAll reserves every input in one transaction: either all succeed or no
// quantity moves.
func (s *Service) ReserveAll(ctx context.Context, inputs []ReserveInput) ([]Reservation, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("at least one reservation required")
	}
	normalized := make([]ReserveInput, len(inputs))
	for i, in := range inputs {
		in.ItemCode = strings.TrimSpace(in.ItemCode)
		in.Token = strings.TrimSpace(in.Token)
		if in.ItemCode == "" {
			return nil, shared.Validationf("item code required")
		}
		if in.Token == "" {
			return nil, shared.Validationf("request token required")
		}
		if in.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		zone, err := s.ResolveZone(in.Zone)
		if err != nil {
			return nil, err
		}
		in.Zone = zone
		normalized[i] = in
	}

	out := make([]Reservation, 0, len(normalized))
	var fresh []Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		out, fresh = out[:0], nil
		ledger := NewTxLedger(tx)
		for _, in := range normalized {
			res, replayed, err := ledger.Reserve(ctx, in)
			if err != nil {
				return err
			}
			if !replayed {
				fresh = append(fresh, res)
			}
			out = append(out, res)
		}
		return nil
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}
	if len(fresh) == 0 {
		s.observe(shared.ErrIdempotencyReplay)
	} else {
		s.observe(nil)
	}
	for _, res := range fresh {
		s.record(ctx, normalized[0].Actor, "stock.reserve", res.ID.String(), map[string]any{
			"item_code": res.ItemCode,
			"zone":      res.Zone,
			"quantity":  res.Quantity,
			"reference": res.Reference,
		})
	}
	return out, nil
}

// Release returns a reservation's quantity. Releasing an already released
// reservation succeeds without side effects.
func (s *Service) Release(ctx context.Context, id uuid.UUID, actor string) (Reservation, error) {
	if id == uuid.Nil {
		return Reservation{}, shared.Validationf("reservation id required")
	}
	var out Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := NewTxLedger(tx).Release(ctx, id)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	s.record(ctx, actor, "stock.release", out.ID.String(), map[string]any{"item_code": out.ItemCode, "quantity": out.Quantity})
	return out, nil
}

// RecordMovement appends a ledger row and updates both summaries atomically.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, error) {
	input.ItemCode = strings.TrimSpace(input.ItemCode)
	if input.ItemCode == "" {
		return Movement{}, shared.Validationf("item code required")
	}
	if !input.Kind.Postable() {
		return Movement{}, fmt.Errorf("%w: %q", ErrInvalidKind, input.Kind)
	}
	if err := input.Kind.checkDelta(input.Delta); err != nil {
		return Movement{}, err
	}
	zone, err := s.ResolveZone(input.Zone)
	if err != nil {
		return Movement{}, err
	}
	var out Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := NewTxLedger(tx).Apply(ctx, Movement{
			ItemCode:  input.ItemCode,
			Zone:      zone,
			Delta:     input.Delta,
			Kind:      input.Kind,
			Reference: input.Reference,
			Note:      input.Note,
			CreatedBy: input.Actor,
		})
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, input.Actor, "stock.movement", fmt.Sprintf("%d", out.ID), map[string]any{
		"item_code": out.ItemCode,
		"zone":      out.Zone,
		"delta":     out.Delta,
		"kind":      string(out.Kind),
	})
	return out, nil
}

// GetAvailability returns the current snapshot for an item. Configured zones
// without rows are reported as zero. Identical concurrent reads share one query.
func (s *Service) GetAvailability(ctx context.Context, itemCode string) (Availability, error) {
	itemCode = strings.TrimSpace(itemCode)
	if itemCode == "" {
		return Availability{}, shared.Validationf("item_code required")
	}
	// The shared query outlives any one caller's cancellation.
	ch := s.reads.DoChan(itemCode, func() (any, error) {
		return s.repo.GetAvailability(context.WithoutCancel(ctx), itemCode)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Availability{}, ctx.Err()
	}
	if res.Err != nil {
		return Availability{}, res.Err
	}
	snapshot := res.Val.(Availability)
	out := Availability{ItemCode: snapshot.ItemCode, Total: snapshot.Total, Zones: make(map[string]int, len(snapshot.Zones))}
	for _, zone := range s.zones.Names() {
		out.Zones[zone] = 0
	}
	for zone, qty := range snapshot.Zones {
		out.Zones[zone] = qty
	}
	return out, nil
}

// ListMovements lists ledger rows for an item.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	filter.ItemCode = strings.TrimSpace(filter.ItemCode)
	if filter.ItemCode == "" {
		return nil, shared.Validationf("item_code required")
	}
	if filter.Zone != "" {
		zone, err := s.ResolveZone(filter.Zone)
		if err != nil {
			return nil, err
		}
		filter.Zone = zone
	}
	return s.repo.ListMovements(ctx, filter)
}

// Rebuild recomputes summaries from the ledger and reports drifted rows.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	var drift int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := NewTxLedger(tx).Rebuild(ctx)
		if err != nil {
			return err
		}
		drift = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if drift > 0 {
		s.logger.Warn("stock summaries drifted from ledger", slog.Int("rows", drift))
	}
	return drift, nil
}

func (s *Service) observe(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveReservation("succeeded")
	case errors.Is(err, shared.ErrIdempotencyReplay):
		s.metrics.ObserveReservation("already_done")
	case errors.Is(err, shared.ErrInsufficientStock):
		s.metrics.ObserveReservation("insufficient")
	case errors.Is(err, shared.ErrConflict):
		s.metrics.ObserveReservation("conflict")
	default:
		s.metrics.ObserveReservation("error")
	}
}

func (s *Service) record(ctx context.Context, actor, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "stock", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("stock audit", slog.String("action", action), slog.Any("error", err))
	}
}
