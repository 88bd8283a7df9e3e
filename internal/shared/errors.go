package shared

import (
	"errors"
	"fmt"
)

// Error kinds shared by every domain package. Package level errors wrap one of
// these so the transport layer can map them without knowing the package.
var (
	// ErrValidation indicates malformed or out of range input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates a missing or unverifiable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the identity lacks the role or ownership required.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state conflict such as an illegal transition.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates a reservation or movement would oversell.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Validationf builds an ErrValidation with detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Forbiddenf builds an ErrForbidden with detail.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Conflictf builds an ErrConflict with detail.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// IsClientError reports whether err belongs to a known caller-facing kind.
func IsClientError(err error) bool {
	for _, kind := range []error{ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInsufficientStock} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
