package httpx

import (
	"errors"
	"net/http"

	"github.com/dukapos/dukapos/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// InsufficientStock and ExpiryViolation are expected, actionable failures and
// surface as validation problems; invariant and configuration faults do not
// leak their detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrExpiryViolation):
		Problem(w, http.StatusUnprocessableEntity, "Expiry Violation", err.Error())
	case errors.Is(err, shared.ErrConfiguration):
		Problem(w, http.StatusInternalServerError, "Configuration Error", "")
	case errors.Is(err, shared.ErrInvariantViolation):
		Problem(w, http.StatusConflict, "Conflict", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
