// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvalidOperation:
		return http.StatusUnprocessableEntity
	case shared.KindInsufficientStock:
		return http.StatusConflict
	}
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807. Details
// of unclassified errors are not echoed.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, http.StatusText(status), detail)
}
