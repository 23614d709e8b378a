package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("issue: %w", InsufficientStock("only %s available", "3"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NotErrorIs(t, err, ErrInvalidOperation)
	require.Equal(t, KindInsufficientStock, KindOf(err))
	require.Equal(t, "only 3 available", errors.Unwrap(err).Error())

	require.ErrorIs(t, NotFound("warehouse", 7), ErrNotFound)
	require.Equal(t, "warehouse 7 not found", NotFound("warehouse", 7).Error())
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))

	// two messages of the same kind are distinct errors
	require.NotErrorIs(t, InvalidOperation("a"), InvalidOperation("b"))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("division by zero")
	err := &Error{Kind: KindArithmetic, Err: cause}
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrArithmetic)
	require.Equal(t, "arithmetic", err.Error())
}

func TestAuditLogValidate(t *testing.T) {
	require.NoError(t, AuditLog{Action: "inventory.receipt", Entity: "stock_movement", EntityID: "12"}.Validate())
	require.Error(t, AuditLog{Action: "inventory.receipt", Entity: "stock_movement"}.Validate())

	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{}))
}

func TestIdempotencyKeyChecks(t *testing.T) {
	require.Error(t, checkKey("", "inventory"))
	require.Error(t, checkKey("k", ""))
	require.NoError(t, checkKey("k", "inventory"))

	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(context.Background(), 1, "k", "inventory"))
	require.NoError(t, store.Delete(context.Background(), 1, "k"))
}

func TestLockKeys(t *testing.T) {
	require.Equal(t, "inventory:tenant:3:count:9:lock", StockCountLockKey(3, 9))
	require.Equal(t, "inventory:tenant:3:revaluation:lock", RevaluationLockKey(3))
}
