package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusFor(shared.NotFound("warehouse", 3)))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(shared.InvalidOperation("bad")))
	require.Equal(t, http.StatusConflict, StatusFor(fmt.Errorf("post: %w", shared.InsufficientStock("short"))))
	require.Equal(t, http.StatusConflict, StatusFor(shared.ErrIdempotencyConflict))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("db down")))
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("password=secret"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "secret")

	rr = httptest.NewRecorder()
	RespondError(rr, shared.NotFound("warehouse", 3))
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"title":"Not Found","status":404,"detail":"warehouse 3 not found"}`, rr.Body.String())
}
