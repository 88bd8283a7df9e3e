package orders

import (
	"fmt"
	"strings"
	"time"
)

// Facts are the observations a transition depends on beyond the order row.
type Facts struct {
	Actor   string
	IsAdmin bool
	Now     time.Time

	// Remark is stored with approval decisions.
	Remark string
	// AllReserved reports that every item holds an active reservation.
	AllReserved bool
	// SerializedEntries counts dispatch entries with a serial number.
	SerializedEntries int
	DeliveredOn       *time.Time
	DeliveryProof     string
	ReturnKind        ReturnStatus
}

// Authorize runs the actor checks of a trigger. They precede every state check
// so a wrong actor is refused regardless of where the order stands.
func Authorize(o Order, t Trigger, f Facts) error {
	switch t {
	case TriggerMarkDelivered:
		if !strings.EqualFold(strings.TrimSpace(f.Actor), strings.TrimSpace(o.BookingBy)) {
			return ErrNotBookingOwner
		}
	case TriggerDelete:
		if !f.IsAdmin {
			return ErrAdminRequired
		}
	}
	return nil
}

// Apply computes the order after trigger t. A trigger that has already taken
// effect returns the order unchanged with ResultAlreadyDone.
func Apply(o Order, t Trigger, f Facts) (Order, Result, error) {
	if err := Authorize(o, t, f); err != nil {
		return o, "", err
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	next := o
	switch t {
	case TriggerApprove:
		if o.ApprovalStatus == ApprovalApproved {
			return o, ResultAlreadyDone, nil
		}
		if o.ApprovalStatus != ApprovalPending || o.IsCancelled || o.Terminal() {
			return o, "", invalid(o, t)
		}
		next.SalesStatus = Done
		next.ApprovalStatus = ApprovalApproved
		next.ApprovalRemark = f.Remark

	case TriggerReject:
		if o.ApprovalStatus == ApprovalRejected {
			return o, ResultAlreadyDone, nil
		}
		if o.ApprovalStatus != ApprovalPending || o.Terminal() {
			return o, "", invalid(o, t)
		}
		next.IsCancelled = true
		next.ApprovalStatus = ApprovalRejected
		next.ApprovalRemark = f.Remark

	case TriggerResetApproval:
		if o.ApprovalStatus == ApprovalPending && !o.IsCancelled && !o.SalesStatus.IsDone() {
			return o, ResultAlreadyDone, nil
		}
		next.ApprovalStatus = ApprovalPending
		next.IsCancelled = false
		next.SalesStatus = Pending
		next.ApprovalRemark = f.Remark

	case TriggerConfirmAccount:
		if o.AccountStatus.IsDone() {
			return o, ResultAlreadyDone, nil
		}
		if !o.SalesStatus.IsDone() || !o.open() {
			return o, "", invalid(o, t)
		}
		next.AccountStatus = Done

	case TriggerConfirmAdmin:
		if o.AdminStatus.IsDone() {
			return o, ResultAlreadyDone, nil
		}
		if !o.AccountStatus.IsDone() || !o.open() {
			return o, "", invalid(o, t)
		}
		next.AdminStatus = Done

	case TriggerReserve:
		if o.DispatchStatus.IsDone() || !o.open() {
			return o, "", invalid(o, t)
		}
		// Reservation does not move the order; the ledger reports replays.
		return o, ResultSucceeded, nil

	case TriggerDispatch:
		if o.DispatchStatus.IsDone() {
			return o, ResultAlreadyDone, nil
		}
		if !o.AdminStatus.IsDone() || !o.open() {
			return o, "", invalid(o, t)
		}
		if !f.AllReserved {
			return o, "", ErrReservationsMissing
		}
		next.DispatchStatus = Done
		next.DispatchedAt = &now

	case TriggerMarkDelivered:
		if o.DeliveryStatus.IsDone() {
			return o, ResultAlreadyDone, nil
		}
		if !o.open() {
			return o, "", invalid(o, t)
		}
		if !o.DispatchStatus.IsDone() {
			return o, "", ErrDispatchRequired
		}
		on := f.DeliveredOn
		if on == nil {
			day := deliveredDay(now)
			on = &day
		}
		next.DeliveryStatus = Done
		next.DeliveredOn = on
		next.DeliveryProof = f.DeliveryProof

	case TriggerMarkInstalled:
		if o.InstallationStatus.IsDone() {
			return o, ResultAlreadyDone, nil
		}
		if !o.DeliveryStatus.IsDone() || !o.open() {
			return o, "", invalid(o, t)
		}
		if f.SerializedEntries == 0 {
			return o, "", ErrSerialRequired
		}
		next.InstallationStatus = Done
		next.InstalledAt = &now

	case TriggerComplete:
		if o.CompletedAt != nil {
			return o, ResultAlreadyDone, nil
		}
		if !o.InstallationStatus.IsDone() || !o.open() {
			return o, "", invalid(o, t)
		}
		next.CompletedAt = &now

	case TriggerCancel:
		if o.IsCancelled {
			return o, ResultAlreadyDone, nil
		}
		if o.Terminal() || o.IsReturned != ReturnNone {
			return o, "", invalid(o, t)
		}
		next.IsCancelled = true

	case TriggerMarkReturned:
		if f.ReturnKind != ReturnFull && f.ReturnKind != ReturnPartial {
			return o, "", fmt.Errorf("%w: return kind required", ErrInvalidTransition)
		}
		if o.IsReturned == ReturnFull {
			if f.ReturnKind == ReturnFull {
				return o, ResultAlreadyDone, nil
			}
			return o, "", invalid(o, t)
		}
		if !o.DeliveryStatus.IsDone() || o.IsCancelled {
			return o, "", invalid(o, t)
		}
		next.IsReturned = f.ReturnKind

	case TriggerDelete:
		return o, ResultSucceeded, nil

	default:
		return o, "", fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, t)
	}

	if err := next.checkInvariants(); err != nil {
		return o, "", err
	}
	next.UpdatedAt = now
	return next, ResultSucceeded, nil
}

// open reports whether forward work may continue on the order.
func (o Order) open() bool {
	return !o.IsCancelled && !o.Terminal() && o.IsReturned == ReturnNone
}

func (o Order) checkInvariants() error {
	switch {
	case o.DeliveryStatus.IsDone() && !o.DispatchStatus.IsDone():
		return fmt.Errorf("%w: delivery without dispatch", ErrInvalidTransition)
	case o.InstallationStatus.IsDone() && !o.DeliveryStatus.IsDone():
		return fmt.Errorf("%w: installation without delivery", ErrInvalidTransition)
	case o.CompletedAt != nil && !o.InstallationStatus.IsDone():
		return fmt.Errorf("%w: completion without installation", ErrInvalidTransition)
	case o.ApprovalStatus == ApprovalRejected && !o.IsCancelled:
		return fmt.Errorf("%w: rejected order must be cancelled", ErrInvalidTransition)
	}
	return nil
}

// deliveredDay normalises a delivery date to midnight UTC.
func deliveredDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
