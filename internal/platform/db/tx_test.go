package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsRetryable(fmt.Errorf("inventory: update: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("timeout")))
}

func TestWithTxRequiresPool(t *testing.T) {
	called := false
	err := WithTx(context.Background(), nil, func(context.Context, pgx.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
}

// outerTx stands in for a transaction opened further up the call chain.
type outerTx struct {
	pgx.Tx
}

func TestWithTxJoinsTransactionFromContext(t *testing.T) {
	outer := &outerTx{}
	ctx := ContextWithTx(context.Background(), outer)

	var seen pgx.Tx
	err := WithTx(ctx, nil, func(ctx context.Context, tx pgx.Tx) error {
		seen = tx
		inner, ok := TxFromContext(ctx)
		require.True(t, ok)
		require.Same(t, outer, inner)
		return nil
	})
	require.NoError(t, err)
	require.Same(t, outer, seen)

	err = WithSnapshot(ctx, nil, func(context.Context, pgx.Tx) error {
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	_, ok := TxFromContext(context.Background())
	require.False(t, ok)
}

func TestRetryStopsOnSuccessOrPermanentError(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.True(t, IsRetryable(err))
	require.Equal(t, 3, calls)

	calls = 0
	err = retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return errors.New("syntax error")
	})
	require.EqualError(t, err, "syntax error")
	require.Equal(t, 1, calls)
}

func TestRetryGivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry(ctx, 5, time.Hour, func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
