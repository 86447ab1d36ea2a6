package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
)

func newMock(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func quoted(s string) string { return regexp.QuoteMeta(s) }

func TestTryReserveIsConditional(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	const reserve = "UPDATE delivery_slots SET reserved_count = reserved_count + 1"

	mock.ExpectExec(quoted(reserve)).WithArgs("s1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(quoted(reserve)).WithArgs("s1").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(quoted(reserve)).WithArgs("s1").WillReturnError(&pgconn.PgError{Code: "40P01"})

	ok, err := db.Slots().TryReserve(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Slots().TryReserve(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "a full or closed slot matches no row")

	_, err = db.Slots().TryReserve(ctx, "s1")
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseNeverGoesBelowZero(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(quoted("WHERE id = $1 AND reserved_count > 0")).
		WithArgs("s1").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := db.Slots().Release(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryRedeemChecksEveryRuleInTheUpdate(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(quoted("UPDATE coupons SET used_count = used_count + 1")).
		WithArgs("c1", now).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := db.Coupons().TryRedeem(context.Background(), "c1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStock(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	const dec = "UPDATE products SET stock = stock - $2, updated_at = now()"
	mock.ExpectExec(quoted(dec)).WithArgs("p1", 3).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(quoted(dec)).WithArgs("p1", 30).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := db.Products().DecrementStock(ctx, "p1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.Products().DecrementStock(ctx, "p1", 30)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyClaim(t *testing.T) {
	at := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	const insert = "ON CONFLICT (user_id, idem_key) DO NOTHING"
	const read = "SELECT order_id FROM checkout_idempotency"

	t.Run("fresh key", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(quoted(insert)).WithArgs("u1", "k1", at).WillReturnResult(pgxmock.NewResult("INSERT", 1))

		orderID, claimed, err := db.Idempotency().Claim(context.Background(), "u1", "k1", at)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Empty(t, orderID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("finished key", func(t *testing.T) {
		db, mock := newMock(t)
		done := "order-9"
		mock.ExpectExec(quoted(insert)).WithArgs("u1", "k1", at).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(quoted(read)).WithArgs("u1", "k1").
			WillReturnRows(pgxmock.NewRows([]string{"order_id"}).AddRow(&done))

		orderID, claimed, err := db.Idempotency().Claim(context.Background(), "u1", "k1", at)
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, "order-9", orderID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key without an order", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(quoted(insert)).WithArgs("u1", "k1", at).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(quoted(read)).WithArgs("u1", "k1").
			WillReturnRows(pgxmock.NewRows([]string{"order_id"}).AddRow((*string)(nil)))

		orderID, claimed, err := db.Idempotency().Claim(context.Background(), "u1", "k1", at)
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Empty(t, orderID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClearLinesDeletesOnlyNamedProducts(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectExec(quoted("DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)")).
		WithArgs("u1", []string{"a", "b"}).WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, db.Carts().ClearLines(ctx, "u1", []string{"a", "b"}))
	require.NoError(t, db.Carts().ClearLines(ctx, "u1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecountLocksThenRepairs(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(quoted("SELECT id FROM delivery_slots ORDER BY id FOR UPDATE")).
		WillReturnResult(pgxmock.NewResult("SELECT", 2))
	mock.ExpectQuery(quoted("UPDATE delivery_slots d SET reserved_count = drift.after")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "before", "after", "actual"}).
			AddRow("s1", 3, 1, 1).
			AddRow("s2", 2, 2, 4))
	mock.ExpectCommit()

	fixes, err := db.Slots().Recount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []delivery.Correction{
		{SlotID: "s1", Before: 3, After: 1, Actual: 1},
		{SlotID: "s2", Before: 2, After: 2, Actual: 4},
	}, fixes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(quoted("UPDATE delivery_slots SET reserved_count = reserved_count + 1")).
		WithArgs("s1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	err := db.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := db.Slots().TryReserve(ctx, "s1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
