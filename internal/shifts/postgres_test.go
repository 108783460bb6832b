package shifts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var shiftCols = []string{"id", "opened_at", "opened_by", "initial_balance", "status", "closed_at", "closed_by", "final_balance", "total_sales", "total_expenses", "expected_balance", "notes"}

func TestPostgresStore_InsertMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO cashier_sessions").
		WithArgs("s-1", now, "Ana", int64(10000), "open").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO cashier_sessions").
		WithArgs("s-2", now, "Bob", int64(500), "open").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "cashier_sessions_one_open"})

	store := NewPostgresStore(mock)
	require.NoError(t, store.Insert(context.Background(), &Shift{ID: "s-1", OpenedAt: now, OpenedBy: "Ana", InitialBalance: Units(100, 0)}))
	err = store.Insert(context.Background(), &Shift{ID: "s-2", OpenedAt: now, OpenedBy: "Bob", InitialBalance: Units(5, 0)})
	require.ErrorIs(t, err, ErrShiftAlreadyOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("FROM cashier_sessions WHERE status = 'open'").
		WillReturnRows(mock.NewRows(shiftCols).AddRow("s-1", now, "Ana", int64(10000), "open", nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery("FROM cashier_sessions WHERE status = 'open'").
		WillReturnRows(mock.NewRows(shiftCols))

	store := NewPostgresStore(mock)
	s, err := store.FindOpen(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s-1", s.ID)
	require.Equal(t, Units(100, 0), s.InitialBalance)
	require.Nil(t, s.ClosedAt)
	require.Nil(t, s.ExpectedBalance)

	s, err = store.FindOpen(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestPostgresStore_CloseIfOpenIsConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	opened := time.Now().UTC().Add(-8 * time.Hour)
	closedAt := time.Now().UTC()
	c := Closing{ClosedAt: closedAt, ClosedBy: "Ana", FinalBalance: 19000, TotalSales: 10000, TotalExpenses: 1000, ExpectedBalance: 19000, Notes: "ok"}

	closedBy, notes := "Ana", "ok"
	final, sales, expenses, expected := int64(19000), int64(10000), int64(1000), int64(19000)
	mock.ExpectQuery(`UPDATE cashier_sessions SET status = 'closed'(.+)WHERE id = \$1 AND status = 'open'`).
		WithArgs("s-1", closedAt, "Ana", int64(19000), int64(10000), int64(1000), int64(19000), "ok").
		WillReturnRows(mock.NewRows(shiftCols).AddRow("s-1", opened, "Ana", int64(10000), "closed", &closedAt, &closedBy, &final, &sales, &expenses, &expected, &notes))
	mock.ExpectQuery(`UPDATE cashier_sessions SET status = 'closed'`).
		WithArgs("s-1", closedAt, "Ana", int64(19000), int64(10000), int64(1000), int64(19000), "ok").
		WillReturnRows(mock.NewRows(shiftCols))
	mock.ExpectQuery(`UPDATE cashier_sessions SET status = 'closed'`).
		WithArgs("s-1", closedAt, "Ana", int64(19000), int64(10000), int64(1000), int64(19000), "ok").
		WillReturnError(errors.New("connection reset"))

	store := NewPostgresStore(mock)
	s, err := store.CloseIfOpen(context.Background(), "s-1", c)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, s.Status)
	require.Equal(t, Units(190, 0), *s.ExpectedBalance)
	require.Equal(t, "ok", s.Notes)

	_, err = store.CloseIfOpen(context.Background(), "s-1", c)
	require.ErrorIs(t, err, ErrNoOpenShift)

	_, err = store.CloseIfOpen(context.Background(), "s-1", c)
	require.ErrorContains(t, err, "connection reset")
	require.NotErrorIs(t, err, ErrNoOpenShift)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Transactions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	shiftID := "s-1"
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, shift_id, type, amount, created_at FROM transactions WHERE shift_id").
		WithArgs(shiftID).
		WillReturnRows(mock.NewRows([]string{"id", "shift_id", "type", "amount", "created_at"}).
			AddRow("t-1", &shiftID, "sale", int64(5000), now).
			AddRow("t-2", &shiftID, "expense", int64(1000), now))

	txs, err := NewPostgresStore(mock).Transactions(context.Background(), shiftID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	sales, expenses := Totals(txs)
	require.Equal(t, Units(50, 0), sales)
	require.Equal(t, Units(10, 0), expenses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM cashier_sessions WHERE id").WithArgs("missing").WillReturnRows(mock.NewRows(shiftCols))
	_, err = NewPostgresStore(mock).Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
