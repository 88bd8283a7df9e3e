// Package stock implements the stock ledger: per-item, per-zone quantities with
// idempotent reservations. Movements are the source of truth; zone and total
// summaries are maintained in the same transaction as every movement.
package stock

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// MovementKind enumerates ledger row kinds.
type MovementKind string

const (
	MovementIn      MovementKind = "in"
	MovementOut     MovementKind = "out"
	MovementAdjust  MovementKind = "adjust"
	MovementReturn  MovementKind = "return"
	MovementReserve MovementKind = "reserve"
	MovementRelease MovementKind = "release"
)

// IsValid reports whether the kind is known.
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjust, MovementReturn, MovementReserve, MovementRelease:
		return true
	default:
		return false
	}
}

// Postable reports whether callers may post this kind directly. Reserve and
// release rows are written by the ledger itself.
func (k MovementKind) Postable() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjust, MovementReturn:
		return true
	default:
		return false
	}
}

// checkDelta enforces the sign convention of each kind.
func (k MovementKind) checkDelta(delta int) error {
	switch {
	case delta == 0:
		return ErrInvalidQuantity
	case (k == MovementIn || k == MovementReturn || k == MovementRelease) && delta < 0:
		return fmt.Errorf("%w: %s movement must be positive", ErrInvalidQuantity, k)
	case (k == MovementOut || k == MovementReserve) && delta > 0:
		return fmt.Errorf("%w: %s movement must be negative", ErrInvalidQuantity, k)
	}
	return nil
}

// ReservationStatus tracks a reservation lifecycle.
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationReleased ReservationStatus = "released"
	ReservationConsumed ReservationStatus = "consumed"
)

// Movement is an append-only ledger row.
type Movement struct {
	ID        int64        `json:"id"`
	ItemCode  string       `json:"item_code"`
	Zone      string       `json:"zone"`
	Delta     int          `json:"delta"`
	Kind      MovementKind `json:"kind"`
	Reference string       `json:"reference,omitempty"`
	Note      string       `json:"note,omitempty"`
	CreatedBy string       `json:"created_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Reservation holds quantity aside for a reference until consumed or released.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	Token     string            `json:"request_token"`
	ItemCode  string            `json:"item_code"`
	Zone      string            `json:"zone"`
	Quantity  int               `json:"quantity"`
	Reference string            `json:"reference,omitempty"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// sameRequest reports whether in describes the same reservation.
func (r Reservation) sameRequest(in ReserveInput) bool {
	return r.ItemCode == in.ItemCode && r.Zone == in.Zone && r.Quantity == in.Quantity
}

// ZoneQuantity is a summary row.
type ZoneQuantity struct {
	ItemCode string
	Zone     string
	Quantity int
}

// Availability is the snapshot returned to readers.
type Availability struct {
	ItemCode string
	Total    int
	Zones    map[string]int
}

// MarshalJSON renders {item_code, total, <zone>..., zones}, zone keys lower-cased.
func (a Availability) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Zones)+3)
	for zone, qty := range a.Zones {
		out[strings.ToLower(strings.ReplaceAll(zone, " ", "_"))] = qty
	}
	out["item_code"] = a.ItemCode
	out["total"] = a.Total
	zones := a.Zones
	if zones == nil {
		zones = map[string]int{}
	}
	out["zones"] = zones
	return json.Marshal(out)
}

// ReserveInput requests a reservation. Token identifies the request for replays.
type ReserveInput struct {
	ItemCode  string `json:"item_code" validate:"required,max=64"`
	Zone      string `json:"zone" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Token     string `json:"request_token" validate:"required,max=128"`
	Reference string `json:"reference" validate:"max=128"`
	Actor     string `json:"-"`
}

// MovementInput posts a ledger movement.
type MovementInput struct {
	ItemCode  string       `json:"item_code" validate:"required,max=64"`
	Zone      string       `json:"zone" validate:"required"`
	Delta     int          `json:"delta" validate:"required"`
	Kind      MovementKind `json:"kind" validate:"required"`
	Reference string       `json:"reference" validate:"max=128"`
	Note      string       `json:"note" validate:"max=500"`
	Actor     string       `json:"-"`
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ItemCode string
	Zone     string
	Limit    int
}

var (
	// ErrInvalidZone indicates a zone outside the configured set.
	ErrInvalidZone = fmt.Errorf("%w: unknown zone", shared.ErrValidation)
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: invalid quantity", shared.ErrValidation)
	// ErrInvalidKind indicates a movement kind callers may not post.
	ErrInvalidKind = fmt.Errorf("%w: invalid movement kind", shared.ErrValidation)
	// ErrTokenMismatch indicates a request token reused for a different reservation.
	ErrTokenMismatch = fmt.Errorf("%w: request token already used for a different reservation", shared.ErrConflict)
	// ErrReservationConsumed indicates the reservation was already consumed by dispatch.
	ErrReservationConsumed = fmt.Errorf("%w: reservation already consumed", shared.ErrConflict)
	// ErrReservationNotFound indicates an unknown reservation.
	ErrReservationNotFound = fmt.Errorf("%w: reservation", shared.ErrNotFound)
)

func insufficient(itemCode, zone string, requested int) error {
	return fmt.Errorf("%w: item %s zone %s requested %d", shared.ErrInsufficientStock, itemCode, zone, requested)
}
