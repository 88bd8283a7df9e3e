package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dynaclean/dynaflow/internal/dispatch"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts transition outcomes.
type MetricsPort interface {
	ObserveTransition(trigger, result string)
}

// ZoneResolver canonicalises stock zones.
type ZoneResolver interface {
	ResolveZone(zone string) (string, error)
}

// EntryPreparer validates dispatch entries before they are written.
type EntryPreparer interface {
	Prepare(in dispatch.EntryInput) (dispatch.Entry, error)
}

// CodeStore issues and checks one-time delivery codes. Check leaves the code
// in place; Consume retires it.
type CodeStore interface {
	Issue(ctx context.Context, purpose, subject string) (string, error)
	Check(ctx context.Context, purpose, subject, code string) error
	Consume(ctx context.Context, purpose, subject string) error
}

// CodeNotifier hands an issued code to the customer.
type CodeNotifier interface {
	NotifyDeliveryOTP(ctx context.Context, orderID int64, recipient, code string) error
}

// Dependencies groups the collaborators of Service.
type Dependencies struct {
	Zones    ZoneResolver
	Dispatch EntryPreparer
	Codes    CodeStore
	Notifier CodeNotifier
	Metrics  MetricsPort
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AdminRoles          []string
	DeliveryOTPRequired bool
	Logger              *slog.Logger
}

// OTPPurposeDelivery scopes delivery codes in the code store.
const OTPPurposeDelivery = "delivery"

// Service coordinates order transitions.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	deps        Dependencies
	adminRoles  []string
	otpRequired bool
	logger      *slog.Logger
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, deps Dependencies, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		deps:        deps,
		adminRoles:  cfg.AdminRoles,
		otpRequired: cfg.DeliveryOTPRequired,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// Create books a quotation as an order. Booking a quote twice with the same
// grand total returns the existing order.
func (s *Service) Create(ctx context.Context, in CreateInput, actor shared.Identity) (Outcome, error) {
	if actor.IsZero() {
		return Outcome{}, shared.ErrUnauthorized
	}
	order, err := s.prepare(in, actor)
	if err != nil {
		return Outcome{}, err
	}
	var out Outcome
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByQuote(ctx, order.QuoteNumber)
		switch {
		case err == nil:
			if !existing.GrandTotal.Equal(order.GrandTotal) {
				return ErrQuoteConflict
			}
			out = Outcome{Result: ResultAlreadyDone, Order: existing}
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}
		created, err := tx.Insert(ctx, order)
		if errors.Is(err, errQuoteTaken) {
			return fmt.Errorf("%w: quote %s booked concurrently", shared.ErrConflict, order.QuoteNumber)
		}
		if err != nil {
			return err
		}
		out = Outcome{Result: ResultSucceeded, Order: created}
		return nil
	})
	s.observe("create", out.Result, err)
	if err != nil {
		return Outcome{}, err
	}
	if out.Result == ResultSucceeded {
		s.record(ctx, actor.Username, "order.create", out.Order, map[string]any{
			"quote_number": out.Order.QuoteNumber,
			"grand_total":  out.Order.GrandTotal.StringFixed(2),
			"booking_by":   out.Order.BookingBy,
		})
	}
	return out, nil
}

func (s *Service) prepare(in CreateInput, actor shared.Identity) (Order, error) {
	quote := strings.TrimSpace(in.QuoteNumber)
	if quote == "" {
		return Order{}, shared.Validationf("quote_number required")
	}
	if strings.TrimSpace(in.ClientName) == "" {
		return Order{}, shared.Validationf("client_name required")
	}
	bookingBy := strings.TrimSpace(in.BookingBy)
	if bookingBy == "" {
		return Order{}, shared.Validationf("booking_by required")
	}
	if in.GrandTotal.IsNegative() {
		return Order{}, shared.Validationf("grand_total must not be negative")
	}
	if len(in.Items) == 0 {
		return Order{}, shared.Validationf("at least one item required")
	}
	items := make([]Item, 0, len(in.Items))
	for i, it := range in.Items {
		code := strings.TrimSpace(it.ItemCode)
		if code == "" {
			return Order{}, shared.Validationf("items[%d]: item_code required", i)
		}
		if it.Quantity <= 0 {
			return Order{}, shared.Validationf("items[%d]: quantity must be positive", i)
		}
		zone := it.Zone
		if s.deps.Zones != nil {
			resolved, err := s.deps.Zones.ResolveZone(it.Zone)
			if err != nil {
				return Order{}, fmt.Errorf("items[%d]: %w", i, err)
			}
			zone = resolved
		}
		items = append(items, Item{ItemCode: code, ItemName: strings.TrimSpace(it.ItemName), Zone: zone, Quantity: it.Quantity})
	}
	now := s.now()
	return Order{
		QuoteNumber:      quote,
		ClientName:       strings.TrimSpace(in.ClientName),
		ClientPhone:      strings.TrimSpace(in.ClientPhone),
		ClientEmail:      strings.TrimSpace(in.ClientEmail),
		CompanyName:      strings.TrimSpace(in.CompanyName),
		DeliveryLocation: strings.TrimSpace(in.DeliveryLocation),
		GrandTotal:       in.GrandTotal.Round(2),
		CreatedBy:        actor.Username,
		BookingBy:        bookingBy,
		ApprovalStatus:   ApprovalPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            items,
	}, nil
}

// Get returns an order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, shared.Validationf("order id must be positive")
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	if filter.PerPage <= 0 || filter.PerPage > 200 {
		filter.PerPage = 50
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if !filter.CreatedFrom.IsZero() && !filter.CreatedTo.IsZero() && filter.CreatedTo.Before(filter.CreatedFrom) {
		return nil, shared.Pagination{}, shared.Validationf("created_to before created_from")
	}
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Decide applies an approval decision.
func (s *Service) Decide(ctx context.Context, id int64, action shared.ApprovalAction, remark string, cmd Command) (Outcome, error) {
	var trigger Trigger
	switch action {
	case shared.ApprovalApprove:
		trigger = TriggerApprove
	case shared.ApprovalReject:
		trigger = TriggerReject
	case shared.ApprovalReset:
		trigger = TriggerResetApproval
	default:
		return Outcome{}, shared.Validationf("unknown approval action %q", action)
	}
	remark = strings.TrimSpace(remark)
	st := step{
		trigger: trigger,
		payload: remark,
		facts: func(_ context.Context, _ *transition, f *Facts) error {
			f.Remark = remark
			return nil
		},
	}
	if trigger == TriggerReject {
		// A rejected order is cancelled; its stock goes back.
		st.effect = func(ctx context.Context, tr *transition) error {
			_, err := tr.tx.Ledger().ReleaseReservations(ctx, tr.before.Reference())
			return err
		}
	}
	return s.apply(ctx, id, cmd, st)
}

// ConfirmAccount marks the accounts stage done.
func (s *Service) ConfirmAccount(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{trigger: TriggerConfirmAccount})
}

// ConfirmAdmin marks the admin stage done.
func (s *Service) ConfirmAdmin(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{trigger: TriggerConfirmAdmin})
}

// ReserveStock reserves every item of the order. Items already reserved are
// replayed, so retrying never reserves twice.
func (s *Service) ReserveStock(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerReserve,
		effect: func(ctx context.Context, tr *transition) error {
			ledger := tr.tx.Ledger()
			fresh := 0
			for _, it := range tr.before.Items {
				res, replayed, err := ledger.Reserve(ctx, stock.ReserveInput{
					ItemCode:  it.ItemCode,
					Zone:      it.Zone,
					Quantity:  it.Quantity,
					Token:     tr.before.ReservationToken(it.ID),
					Reference: tr.before.Reference(),
					Actor:     tr.actor,
				})
				if err != nil {
					return err
				}
				if !replayed {
					fresh++
				}
				tr.reservations = append(tr.reservations, res)
			}
			tr.skipUpdate = true
			if fresh == 0 {
				tr.result = ResultAlreadyDone
			}
			return nil
		},
	})
}

// Dispatch consumes the order's reservations and records what left the godowns.
func (s *Service) Dispatch(ctx context.Context, id int64, in DispatchInput, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerDispatch,
		payload: in,
		facts: func(ctx context.Context, tr *transition, f *Facts) error {
			active, err := tr.tx.Ledger().ActiveReservations(ctx, tr.before.Reference())
			if err != nil {
				return err
			}
			f.AllReserved = coversItems(tr.before, active)
			return nil
		},
		effect: func(ctx context.Context, tr *transition) error {
			entries, err := s.dispatchEntries(tr.before, in)
			if err != nil {
				return err
			}
			if _, err := tr.tx.Ledger().ConsumeReservations(ctx, tr.before.Reference()); err != nil {
				return err
			}
			log := tr.tx.Dispatch()
			for _, e := range entries {
				if _, err := log.Insert(ctx, e); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func coversItems(o Order, active []stock.Reservation) bool {
	if len(o.Items) == 0 {
		return false
	}
	held := make(map[string]struct{}, len(active))
	for _, res := range active {
		held[res.Token] = struct{}{}
	}
	for _, it := range o.Items {
		if _, ok := held[o.ReservationToken(it.ID)]; !ok {
			return false
		}
	}
	return true
}

func (s *Service) dispatchEntries(o Order, in DispatchInput) ([]dispatch.Entry, error) {
	known := make(map[string]string, len(o.Items))
	for _, it := range o.Items {
		known[it.ItemCode] = it.ItemName
	}
	out := make([]dispatch.Entry, 0, len(in.Entries))
	for i, line := range in.Entries {
		name, ok := known[strings.TrimSpace(line.ItemCode)]
		if !ok {
			return nil, shared.Validationf("entries[%d]: item %q is not on the order", i, line.ItemCode)
		}
		if line.ItemName == "" {
			line.ItemName = name
		}
		input := dispatch.EntryInput{
			QuoteNumber: o.QuoteNumber,
			ItemName:    line.ItemName,
			ItemCode:    line.ItemCode,
			SerialNo:    line.SerialNo,
			Remarks:     line.Remarks,
			Photos:      line.Photos,
			Godown:      line.Godown,
			Accessories: line.Accessories,
		}
		if s.deps.Dispatch == nil {
			return nil, errors.New("orders: dispatch preparer not configured")
		}
		e, err := s.deps.Dispatch.Prepare(input)
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// IssueDeliveryOTP sends a one-time code to the customer. Only the booking
// owner may request it.
func (s *Service) IssueDeliveryOTP(ctx context.Context, id int64, actor shared.Identity) error {
	if s.deps.Codes == nil {
		return shared.Conflictf("delivery codes are not enabled")
	}
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Authorize(o, TriggerMarkDelivered, Facts{Actor: actor.Username}); err != nil {
		return err
	}
	if o.DeliveryStatus.IsDone() || !o.DispatchStatus.IsDone() {
		return invalid(o, TriggerMarkDelivered)
	}
	code, err := s.deps.Codes.Issue(ctx, OTPPurposeDelivery, deliverySubject(o.ID))
	if err != nil {
		return err
	}
	if s.deps.Notifier != nil {
		recipient := o.ClientPhone
		if recipient == "" {
			recipient = o.ClientEmail
		}
		if err := s.deps.Notifier.NotifyDeliveryOTP(ctx, o.ID, recipient, code); err != nil {
			return err
		}
	}
	return nil
}

func deliverySubject(id int64) string {
	return fmt.Sprintf("order:%d", id)
}

// MarkDelivered confirms delivery. Only the booking owner may confirm.
func (s *Service) MarkDelivered(ctx context.Context, id int64, in DeliveryInput, cmd Command) (Outcome, error) {
	var deliveredOn *time.Time
	if in.DeliveredOn != "" {
		day, err := time.Parse(time.DateOnly, in.DeliveredOn)
		if err != nil {
			return Outcome{}, shared.Validationf("delivered_on must be YYYY-MM-DD")
		}
		deliveredOn = &day
	}
	proof := strings.TrimSpace(in.DeliveryProof)
	// The code is consumed only after commit so a retried transaction can
	// check it again.
	var checked bool
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerMarkDelivered,
		payload: DeliveryInput{DeliveredOn: in.DeliveredOn, DeliveryProof: proof},
		facts: func(ctx context.Context, tr *transition, f *Facts) error {
			f.DeliveredOn = deliveredOn
			f.DeliveryProof = proof
			checked = false
			if s.otpRequired && !tr.before.DeliveryStatus.IsDone() && tr.before.DispatchStatus.IsDone() {
				if s.deps.Codes == nil {
					return errors.New("orders: delivery code store not configured")
				}
				if strings.TrimSpace(in.OTP) == "" {
					return shared.Validationf("otp required")
				}
				if err := s.deps.Codes.Check(ctx, OTPPurposeDelivery, deliverySubject(tr.before.ID), in.OTP); err != nil {
					return err
				}
				checked = true
			}
			return nil
		},
		committed: func(ctx context.Context, o Order) {
			if !checked {
				return
			}
			if err := s.deps.Codes.Consume(ctx, OTPPurposeDelivery, deliverySubject(o.ID)); err != nil {
				s.logger.Warn("consume delivery code", slog.Int64("order_id", o.ID), slog.Any("error", err))
			}
		},
	})
}

// MarkInstalled confirms installation once a serialised unit was dispatched.
func (s *Service) MarkInstalled(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerMarkInstalled,
		facts: func(ctx context.Context, tr *transition, f *Facts) error {
			n, err := tr.tx.Dispatch().CountSerialized(ctx, tr.before.QuoteNumber)
			if err != nil {
				return err
			}
			f.SerializedEntries = n
			return nil
		},
	})
}

// Complete closes an installed order.
func (s *Service) Complete(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{trigger: TriggerComplete})
}

// Cancel soft-cancels the order and releases its active reservations.
func (s *Service) Cancel(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerCancel,
		effect: func(ctx context.Context, tr *transition) error {
			_, err := tr.tx.Ledger().ReleaseReservations(ctx, tr.before.Reference())
			return err
		},
	})
}

// MarkReturned records returned goods and puts them back into stock.
func (s *Service) MarkReturned(ctx context.Context, id int64, in ReturnInput, cmd Command) (Outcome, error) {
	kind, err := ParseReturnStatus(in.Kind)
	if err != nil {
		return Outcome{}, err
	}
	if len(in.Items) == 0 {
		return Outcome{}, shared.Validationf("at least one returned item required")
	}
	lines := make([]ReturnLine, len(in.Items))
	for i, line := range in.Items {
		line.ItemCode = strings.TrimSpace(line.ItemCode)
		if line.Quantity <= 0 {
			return Outcome{}, shared.Validationf("items[%d]: quantity must be positive", i)
		}
		if s.deps.Zones != nil {
			zone, err := s.deps.Zones.ResolveZone(line.Zone)
			if err != nil {
				return Outcome{}, fmt.Errorf("items[%d]: %w", i, err)
			}
			line.Zone = zone
		}
		lines[i] = line
	}
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerMarkReturned,
		payload: ReturnInput{Kind: kind.String(), Items: lines},
		facts: func(_ context.Context, _ *transition, f *Facts) error {
			f.ReturnKind = kind
			return nil
		},
		effect: func(ctx context.Context, tr *transition) error {
			ordered := make(map[string]int, len(tr.before.Items))
			for _, it := range tr.before.Items {
				ordered[it.ItemCode] += it.Quantity
			}
			returned, err := tr.tx.SumReturned(ctx, tr.before.ID)
			if err != nil {
				return err
			}
			if returned == nil {
				returned = make(map[string]int, len(lines))
			}
			items := make([]ReturnItem, 0, len(lines))
			for i, line := range lines {
				returned[line.ItemCode] += line.Quantity
				if returned[line.ItemCode] > ordered[line.ItemCode] {
					return shared.Validationf("items[%d]: %s returned quantity %d exceeds %d ordered", i, line.ItemCode, returned[line.ItemCode], ordered[line.ItemCode])
				}
				items = append(items, ReturnItem{
					OrderID:   tr.before.ID,
					ItemCode:  line.ItemCode,
					Zone:      line.Zone,
					Quantity:  line.Quantity,
					SerialNo:  strings.TrimSpace(line.SerialNo),
					Reason:    strings.TrimSpace(line.Reason),
					CreatedBy: tr.actor,
					CreatedAt: tr.now,
				})
			}
			if err := tr.tx.InsertReturnItems(ctx, items); err != nil {
				return err
			}
			ledger := tr.tx.Ledger()
			for _, it := range items {
				if err := ledger.RecordReturn(ctx, it.ItemCode, it.Zone, it.Quantity, tr.before.Reference(), tr.actor); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// Delete removes an order with its return items, approval history, dispatch
// entries and reservations in one transaction. Admin only.
func (s *Service) Delete(ctx context.Context, id int64, cmd Command) (Outcome, error) {
	return s.apply(ctx, id, cmd, step{
		trigger: TriggerDelete,
		effect: func(ctx context.Context, tr *transition) error {
			if _, err := tr.tx.DeleteReturnItems(ctx, tr.before.ID); err != nil {
				return err
			}
			if _, err := tr.tx.DeleteApprovals(ctx, tr.before.ID); err != nil {
				return err
			}
			if _, err := tr.tx.Dispatch().DeleteByQuote(ctx, tr.before.QuoteNumber); err != nil {
				return err
			}
			if _, err := tr.tx.Ledger().ReleaseReservations(ctx, tr.before.Reference()); err != nil {
				return err
			}
			tr.skipUpdate = true
			return tr.tx.Delete(ctx, tr.before.ID)
		},
	})
}

// step describes one trigger: how to gather its facts and which side effects
// accompany the state change.
type step struct {
	trigger   Trigger
	payload   any
	facts     func(ctx context.Context, tr *transition, f *Facts) error
	effect    func(ctx context.Context, tr *transition) error
	committed func(ctx context.Context, o Order)
}

// transition is the working state of one attempt.
type transition struct {
	tx           TxRepository
	actor        string
	now          time.Time
	before       Order
	after        Order
	result       Result
	skipUpdate   bool
	reservations []stock.Reservation
}

// apply runs a trigger inside one transaction holding the order row lock.
func (s *Service) apply(ctx context.Context, id int64, cmd Command, st step) (Outcome, error) {
	if id <= 0 {
		return Outcome{}, shared.Validationf("order id must be positive")
	}
	if cmd.Actor.IsZero() {
		return Outcome{}, shared.ErrUnauthorized
	}
	var out Outcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		out = Outcome{}
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		facts := Facts{Actor: cmd.Actor.Username, IsAdmin: s.isAdmin(cmd.Actor), Now: s.now()}
		if err := Authorize(o, st.trigger, facts); err != nil {
			return err
		}
		if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
			fp := shared.Fingerprint(id, cmd.Actor.Username, st.payload)
			err := tx.ClaimIdempotencyKey(ctx, key, "orders."+string(st.trigger), fp)
			if errors.Is(err, shared.ErrIdempotencyReplay) {
				out = Outcome{Result: ResultAlreadyDone, Order: o}
				return nil
			}
			if err != nil {
				return err
			}
		}
		tr := &transition{tx: tx, actor: cmd.Actor.Username, now: facts.Now, before: o}
		if st.facts != nil {
			if err := st.facts(ctx, tr, &facts); err != nil {
				return err
			}
		}
		next, result, err := Apply(o, st.trigger, facts)
		if err != nil {
			return err
		}
		tr.after, tr.result = next, result
		if result == ResultAlreadyDone {
			out = Outcome{Result: result, Order: o}
			return nil
		}
		if st.effect != nil {
			if err := st.effect(ctx, tr); err != nil {
				return err
			}
		}
		if !tr.skipUpdate {
			if err := tx.Update(ctx, tr.after); err != nil {
				return err
			}
		}
		out = Outcome{Result: tr.result, Order: tr.after, Reservations: tr.reservations}
		return nil
	})
	s.observe(string(st.trigger), out.Result, err)
	if err != nil {
		return Outcome{}, err
	}
	if out.Result == ResultSucceeded {
		if st.committed != nil {
			st.committed(ctx, out.Order)
		}
		s.record(ctx, cmd.Actor.Username, "order."+string(st.trigger), out.Order, map[string]any{
			"stage":   string(out.Order.Stage()),
			"payload": st.payload,
		})
	}
	return out, nil
}

func (s *Service) isAdmin(id shared.Identity) bool {
	return id.HasRole(s.adminRoles...)
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

func (s *Service) observe(trigger string, result Result, err error) {
	if s.deps.Metrics == nil {
		return
	}
	label := string(result)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrUnauthorized):
		label = "forbidden"
	case errors.Is(err, shared.ErrValidation):
		label = "invalid"
	case errors.Is(err, shared.ErrNotFound):
		label = "not_found"
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrInsufficientStock):
		label = "conflict"
	default:
		label = "error"
	}
	s.deps.Metrics.ObserveTransition(trigger, label)
}

func (s *Service) record(ctx context.Context, actor, action string, o Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", o.ID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("order audit", slog.String("action", action), slog.Any("error", err))
	}
}
