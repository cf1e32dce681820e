package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestRunSerializable(t *testing.T) {
	t.Run("commits when the callback succeeds", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := st.RunSerializable(context.Background(), func(tx *sql.Tx) error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and returns the callback error unchanged", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		sentinel := errors.New("business rule refused")
		err := st.RunSerializable(context.Background(), func(tx *sql.Tx) error {
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries a serialization failure", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := st.RunSerializable(context.Background(), func(tx *sql.Tx) error {
			calls++
			if calls == 1 {
				return &pq.Error{Code: codeSerializationFailure}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries a deadlock the same way", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := st.RunSerializable(context.Background(), func(tx *sql.Tx) error {
			calls++
			if calls == 1 {
				return &pq.Error{Code: codeDeadlockDetected}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a conflict after exhausting retries", func(t *testing.T) {
		st, mock := newTestStore(t)

		for i := 0; i < maxTxAttempts; i++ {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}

		calls := 0
		err := st.RunSerializable(context.Background(), func(tx *sql.Tx) error {
			calls++
			return &pq.Error{Code: codeSerializationFailure}
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, maxTxAttempts, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never commits after the context is cancelled", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		ctx, cancel := context.WithCancel(context.Background())
		err := st.RunSerializable(ctx, func(tx *sql.Tx) error {
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
