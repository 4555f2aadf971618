package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/leave"
)

func TestWithTx_Commit(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx leave.Store) error {
		assert.True(t, inTx(ctx), "transaction not carried by context")
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx leave.Store) error {
		return leave.ErrAlreadyProcessed
	})

	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackFailureIsJoined(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	err := store.WithTx(context.Background(), func(ctx context.Context, tx leave.Store) error {
		return leave.ErrAlreadyProcessed
	})

	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
	assert.Contains(t, err.Error(), "rollback")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(outer context.Context, _ leave.Store) error {
		return store.WithTx(outer, func(inner context.Context, _ leave.Store) error {
			assert.Equal(t, store.conn(outer), store.conn(inner))
			return nil
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFailure(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite}).WillReturnError(errors.New("connection refused"))

	called := false
	err := store.WithTx(context.Background(), func(ctx context.Context, tx leave.Store) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.False(t, called)
}

func TestConn_OutsideTxUsesPool(t *testing.T) {
	t.Parallel()
	_, store := newMockStore(t)

	assert.False(t, inTx(context.Background()))
	assert.Equal(t, Queryer(store.pool), store.conn(context.Background()))
}
