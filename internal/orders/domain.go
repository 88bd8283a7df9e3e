// Package orders implements the order lifecycle: booking, the approval and
// confirmation chain, stock reservation, dispatch, delivery, installation,
// cancellation, returns and administrative deletion.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
)

// StageFlag is the state of one workflow stage.
type StageFlag int16

const (
	// Pending means the stage has not been reached.
	Pending StageFlag = 0
	// Done means the stage has been confirmed.
	Done StageFlag = 1
)

// IsDone reports whether the stage is confirmed.
func (f StageFlag) IsDone() bool { return f == Done }

// ApprovalStatus is the latest approval decision on an order.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ReturnStatus tracks whether goods came back.
type ReturnStatus int16

const (
	ReturnNone    ReturnStatus = 0
	ReturnFull    ReturnStatus = 1
	ReturnPartial ReturnStatus = 2
)

// String renders the status for JSON and logs.
func (r ReturnStatus) String() string {
	switch r {
	case ReturnFull:
		return "full"
	case ReturnPartial:
		return "partial"
	default:
		return "none"
	}
}

// ParseReturnStatus parses "full" or "partial".
func ParseReturnStatus(s string) (ReturnStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return ReturnFull, nil
	case "partial":
		return ReturnPartial, nil
	default:
		return ReturnNone, shared.Validationf("return kind must be full or partial")
	}
}

// Stage is the derived position of an order in its lifecycle.
type Stage string

const (
	StageDraft             Stage = "DRAFT"
	StageSalesDone         Stage = "SALES_DONE"
	StageAccountDone       Stage = "ACCOUNT_DONE"
	StageAdminApproved     Stage = "ADMIN_APPROVED"
	StageDispatched        Stage = "DISPATCHED"
	StageDelivered         Stage = "DELIVERED"
	StageInstalled         Stage = "INSTALLED"
	StageComplete          Stage = "COMPLETE"
	StageCancelled         Stage = "CANCELLED"
	StageReturned          Stage = "RETURNED"
	StagePartiallyReturned Stage = "PARTIALLY_RETURNED"
)

// ParseStage parses a stage name case-insensitively.
func ParseStage(s string) (Stage, bool) {
	st := Stage(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StageDraft, StageSalesDone, StageAccountDone, StageAdminApproved, StageDispatched,
		StageDelivered, StageInstalled, StageComplete, StageCancelled, StageReturned, StagePartiallyReturned:
		return st, true
	}
	return "", false
}

// Trigger names a state machine transition.
type Trigger string

const (
	TriggerApprove        Trigger = "approve"
	TriggerReject         Trigger = "reject"
	TriggerResetApproval  Trigger = "reset_approval"
	TriggerConfirmAccount Trigger = "confirm_account"
	TriggerConfirmAdmin   Trigger = "confirm_admin"
	TriggerReserve        Trigger = "reserve"
	TriggerDispatch       Trigger = "dispatch"
	TriggerMarkDelivered  Trigger = "mark_delivered"
	TriggerMarkInstalled  Trigger = "mark_installed"
	TriggerComplete       Trigger = "complete"
	TriggerCancel         Trigger = "cancel"
	TriggerMarkReturned   Trigger = "mark_returned"
	TriggerDelete         Trigger = "delete"
)

// Item is an order line copied from the quotation.
type Item struct {
	ID       int64  `json:"id"`
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	Zone     string `json:"zone"`
	Quantity int    `json:"quantity"`
}

// Order is one customer purchase commitment.
type Order struct {
	ID               int64           `json:"order_id"`
	QuoteNumber      string          `json:"quote_number"`
	ClientName       string          `json:"client_name"`
	ClientPhone      string          `json:"client_phone"`
	ClientEmail      string          `json:"client_email"`
	CompanyName      string          `json:"company_name"`
	DeliveryLocation string          `json:"delivery_location"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	CreatedBy        string          `json:"created_by"`
	BookingBy        string          `json:"booking_by"`

	SalesStatus        StageFlag      `json:"sales_status"`
	AccountStatus      StageFlag      `json:"account_status"`
	AdminStatus        StageFlag      `json:"admin_status"`
	DispatchStatus     StageFlag      `json:"dispatch_status"`
	DeliveryStatus     StageFlag      `json:"delivery_status"`
	InstallationStatus StageFlag      `json:"installation_status"`
	ApprovalStatus     ApprovalStatus `json:"approval_status"`
	ApprovalRemark     string         `json:"approval_remark"`
	IsCancelled        bool           `json:"is_cancelled"`
	IsReturned         ReturnStatus   `json:"is_returned"`

	DeliveredOn   *time.Time `json:"delivered_on"`
	DeliveryProof string     `json:"delivery_proof"`
	DispatchedAt  *time.Time `json:"dispatched_at"`
	InstalledAt   *time.Time `json:"installed_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Items []Item `json:"items"`
}

// Stage derives the lifecycle position from the status fields.
func (o Order) Stage() Stage {
	switch {
	case o.IsReturned == ReturnFull:
		return StageReturned
	case o.IsReturned == ReturnPartial:
		return StagePartiallyReturned
	case o.IsCancelled:
		return StageCancelled
	case o.CompletedAt != nil:
		return StageComplete
	case o.InstallationStatus.IsDone():
		return StageInstalled
	case o.DeliveryStatus.IsDone():
		return StageDelivered
	case o.DispatchStatus.IsDone():
		return StageDispatched
	case o.AdminStatus.IsDone():
		return StageAdminApproved
	case o.AccountStatus.IsDone():
		return StageAccountDone
	case o.SalesStatus.IsDone():
		return StageSalesDone
	default:
		return StageDraft
	}
}

// Terminal reports whether no forward transition is possible.
func (o Order) Terminal() bool {
	return o.CompletedAt != nil || o.IsReturned == ReturnFull
}

// Reference is the stock reservation reference shared by the order's items.
func (o Order) Reference() string {
	return fmt.Sprintf("order:%d", o.ID)
}

// ReservationToken is the request token used to reserve stock for one item.
func (o Order) ReservationToken(itemID int64) string {
	return fmt.Sprintf("order:%d:item:%d", o.ID, itemID)
}

// Result distinguishes a fresh transition from an idempotent replay.
type Result string

const (
	ResultSucceeded   Result = "succeeded"
	ResultAlreadyDone Result = "already_done"
)

// Outcome is returned by every mutating operation.
type Outcome struct {
	Result       Result              `json:"result"`
	Order        Order               `json:"order"`
	Reservations []stock.Reservation `json:"reservations,omitempty"`
}

// ItemInput is an order line supplied at booking.
type ItemInput struct {
	ItemCode string `json:"item_code" validate:"required,max=64"`
	ItemName string `json:"item_name" validate:"max=200"`
	Zone     string `json:"zone" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// CreateInput converts a quotation into a booking.
type CreateInput struct {
	QuoteNumber      string          `json:"quote_number" validate:"required,max=64"`
	ClientName       string          `json:"client_name" validate:"required,max=200"`
	ClientPhone      string          `json:"client_phone" validate:"max=32"`
	ClientEmail      string          `json:"client_email" validate:"omitempty,email"`
	CompanyName      string          `json:"company_name" validate:"max=200"`
	DeliveryLocation string          `json:"delivery_location" validate:"max=500"`
	BookingBy        string          `json:"booking_by" validate:"required,max=64"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	Items            []ItemInput     `json:"items" validate:"required,min=1,dive"`
}

// DeliveryInput carries proof of delivery.
type DeliveryInput struct {
	DeliveredOn   string `json:"delivered_on" validate:"omitempty,datetime=2006-01-02"`
	DeliveryProof string `json:"delivery_proof" validate:"max=500"`
	OTP           string `json:"otp" validate:"omitempty,len=6,numeric"`
}

// DispatchLine is one unit leaving a godown when the order is dispatched.
type DispatchLine struct {
	ItemCode    string          `json:"item_code" validate:"required"`
	ItemName    string          `json:"item_name"`
	SerialNo    string          `json:"serial_no" validate:"max=128"`
	Godown      string          `json:"godown" validate:"required"`
	Remarks     string          `json:"remarks" validate:"max=1000"`
	Photos      []string        `json:"photos" validate:"max=20"`
	Accessories map[string]bool `json:"accessories"`
}

// DispatchInput lists the dispatched units.
type DispatchInput struct {
	Entries []DispatchLine `json:"entries" validate:"dive"`
}

// ReturnLine is one returned quantity.
type ReturnLine struct {
	ItemCode string `json:"item_code" validate:"required"`
	Zone     string `json:"zone" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	SerialNo string `json:"serial_no" validate:"max=128"`
	Reason   string `json:"reason" validate:"max=500"`
}

// ReturnInput records goods coming back.
type ReturnInput struct {
	Kind  string       `json:"kind" validate:"required,oneof=full partial"`
	Items []ReturnLine `json:"items" validate:"required,min=1,dive"`
}

// ReturnItem is a persisted return line.
type ReturnItem struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	ItemCode  string    `json:"item_code"`
	Zone      string    `json:"zone"`
	Quantity  int       `json:"quantity"`
	SerialNo  string    `json:"serial_no,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Command carries the caller and retry key of a mutating request.
type Command struct {
	Actor          shared.Identity
	IdempotencyKey string
}

var (
	// ErrNotFound indicates an unknown order.
	ErrNotFound = fmt.Errorf("%w: order", shared.ErrNotFound)
	// ErrInvalidTransition indicates the trigger is not allowed from the current state.
	ErrInvalidTransition = fmt.Errorf("%w: invalid transition", shared.ErrConflict)
	// ErrQuoteConflict indicates a quote was already booked with different money values.
	ErrQuoteConflict = fmt.Errorf("%w: quote already booked with a different grand total", shared.ErrConflict)
	// ErrReservationsMissing indicates dispatch without stock reserved for every item.
	ErrReservationsMissing = fmt.Errorf("%w: stock not reserved for every item", shared.ErrConflict)
	// ErrDispatchRequired indicates delivery before dispatch.
	ErrDispatchRequired = fmt.Errorf("%w: dispatch required first", shared.ErrConflict)
	// ErrSerialRequired indicates installation with no serialised dispatch entry.
	ErrSerialRequired = fmt.Errorf("%w: a dispatch entry with a serial number is required", shared.ErrConflict)
	// ErrNotBookingOwner indicates delivery confirmation by someone other than booking_by.
	ErrNotBookingOwner = fmt.Errorf("%w: only the booking owner may confirm delivery", shared.ErrForbidden)
	// ErrAdminRequired indicates an administrative operation by a non-admin.
	ErrAdminRequired = fmt.Errorf("%w: admin role required", shared.ErrForbidden)
)

func invalid(o Order, t Trigger) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, o.Stage())
}
