package httpx

import (
	"errors"
	"net/http"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// StatusFor returns the HTTP status a domain error maps to.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInsufficientStock), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		ProblemWithType(w, status, "insufficient-stock", "Insufficient Stock", err.Error())
	case status == http.StatusInternalServerError:
		Problem(w, status, "Internal Error", "")
	default:
		Problem(w, status, http.StatusText(status), err.Error())
	}
}
