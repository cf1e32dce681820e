package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func TestCreateUser(t *testing.T) {
	t.Run("returns the inserted row", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("alice", "hash").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "balance_cents", "is_admin", "created_at"}).
				AddRow(int64(1), "alice", "hash", int64(0), false, testTime))

		user, err := st.CreateUser(context.Background(), "alice", "hash")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.Equal(t, int64(0), user.BalanceCents)
	})

	t.Run("maps a unique violation to ErrDuplicate", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("alice", "hash").
			WillReturnError(&pq.Error{Code: codeUniqueViolation})

		_, err := st.CreateUser(context.Background(), "alice", "hash")
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestGetUser(t *testing.T) {
	t.Run("maps a missing row to ErrNotFound", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "balance_cents", "is_admin", "created_at"}))

		_, err := st.GetUser(context.Background(), 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAdjustBalance(t *testing.T) {
	t.Run("reports a missing row", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectBegin()
		tx, err := st.db.Begin()
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE users SET balance_cents`).
			WithArgs(int64(100), int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = st.AdjustBalance(context.Background(), tx, 99, 100)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSearchItems(t *testing.T) {
	itemColumnNames := []string{"id", "title", "description", "price_cents", "amount", "seller_id", "created_at"}

	t.Run("filters by minimum stock only when no term is given", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectQuery(`SELECT (.+) FROM items WHERE amount >= \$1 ORDER BY id OFFSET \$2 LIMIT \$3`).
			WithArgs(int64(1), int64(0), int64(20)).
			WillReturnRows(sqlmock.NewRows(itemColumnNames).
				AddRow(int64(9), "Lamp", "", int64(111), int64(5), int64(2), testTime))

		items, err := st.SearchItems(context.Background(), SearchParams{Offset: 0, Limit: 20, MinimumStock: 1})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Lamp", items[0].Title)
	})

	t.Run("escapes wildcard characters in the search term", func(t *testing.T) {
		st, mock := newTestStore(t)

		mock.ExpectQuery(`SELECT (.+) FROM items WHERE amount >= \$1 AND title ILIKE \$2`).
			WithArgs(int64(1), `%50\%\_off%`, int64(0), int64(20)).
			WillReturnRows(sqlmock.NewRows(itemColumnNames))

		_, err := st.SearchItems(context.Background(), SearchParams{
			SearchTerm:   "50%_off",
			Limit:        20,
			MinimumStock: 1,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"lamp":     "lamp",
		"50% off":  `50\% off`,
		"a_b":      `a\_b`,
		`back\箱`:   `back\\箱`,
		"":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, escapeLike(in), in)
	}
}
