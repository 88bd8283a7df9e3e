// Package dispatch tracks what physically left a godown for an order: one entry
// per dispatched unit, carrying its serial number, godown and accessories.
package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// Entry is a dispatched line item.
type Entry struct {
	ID          int64           `json:"id"`
	QuoteNumber string          `json:"quote_number"`
	ItemName    string          `json:"item_name"`
	ItemCode    string          `json:"item_code"`
	SerialNo    *string         `json:"serial_no"`
	Remarks     string          `json:"remarks,omitempty"`
	Photos      []string        `json:"photos"`
	Godown      string          `json:"godown"`
	Accessories map[string]bool `json:"accessories"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasSerial reports whether a serial number is bound to the entry.
func (e Entry) HasSerial() bool {
	return e.SerialNo != nil && strings.TrimSpace(*e.SerialNo) != ""
}

// EntryInput describes a dispatch entry to record.
type EntryInput struct {
	QuoteNumber string          `json:"quote_number" validate:"required,max=64"`
	ItemName    string          `json:"item_name" validate:"max=200"`
	ItemCode    string          `json:"item_code" validate:"required,max=64"`
	SerialNo    string          `json:"serial_no" validate:"max=128"`
	Remarks     string          `json:"remarks" validate:"max=1000"`
	Photos      []string        `json:"photos" validate:"max=20,dive,max=500"`
	Godown      string          `json:"godown" validate:"required"`
	Accessories map[string]bool `json:"accessories"`
}

// QuoteState is the owning order as seen by the tracker.
type QuoteState struct {
	OrderID     int64
	QuoteNumber string
	Installed   bool
}

var (
	// ErrNotFound indicates an unknown dispatch entry.
	ErrNotFound = fmt.Errorf("%w: dispatch entry", shared.ErrNotFound)
	// ErrQuoteNotFound indicates no order carries the quote number.
	ErrQuoteNotFound = fmt.Errorf("%w: quote number", shared.ErrNotFound)
	// ErrUnknownGodown indicates a godown outside the configured set.
	ErrUnknownGodown = fmt.Errorf("%w: unknown godown", shared.ErrValidation)
	// ErrImmutable indicates the entry can no longer change because the order is installed.
	ErrImmutable = fmt.Errorf("%w: dispatch entry is immutable after installation", shared.ErrConflict)
)

func optionalSerial(serial string) *string {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil
	}
	return &serial
}
