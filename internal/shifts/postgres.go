package shifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres error code raised by the one-open-shift index.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const shiftColumns = "id, opened_at, opened_by, initial_balance, status, closed_at, closed_by, final_balance, total_sales, total_expenses, expected_balance, notes"

// PostgresStore implements Store on the cashier_sessions and transactions tables.
// A partial unique index on cashier_sessions(status) WHERE status = 'open' keeps
// at most one open shift even across terminals.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanShift(row pgx.Row) (*Shift, error) {
	var (
		s                                Shift
		status                           string
		initial                          int64
		closedAt                         *time.Time
		closedBy, notes                  *string
		final, sales, expenses, expected *int64
	)
	if err := row.Scan(&s.ID, &s.OpenedAt, &s.OpenedBy, &initial, &status, &closedAt, &closedBy, &final, &sales, &expenses, &expected, &notes); err != nil {
		return nil, err
	}
	s.InitialBalance = Money(initial)
	s.Status = Status(status)
	s.ClosedAt = closedAt
	if closedBy != nil {
		s.ClosedBy = *closedBy
	}
	if notes != nil {
		s.Notes = *notes
	}
	s.FinalBalance = moneyPtr(final)
	s.TotalSales = moneyPtr(sales)
	s.TotalExpenses = moneyPtr(expenses)
	s.ExpectedBalance = moneyPtr(expected)
	return &s, nil
}

func moneyPtr(v *int64) *Money {
	if v == nil {
		return nil
	}
	m := Money(*v)
	return &m
}

func (p *PostgresStore) Insert(ctx context.Context, s *Shift) error {
	_, err := p.db.Exec(ctx,
		"INSERT INTO cashier_sessions (id, opened_at, opened_by, initial_balance, status) VALUES ($1, $2, $3, $4, $5)",
		s.ID, s.OpenedAt, s.OpenedBy, int64(s.InitialBalance), string(StatusOpen))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrShiftAlreadyOpen
		}
		return fmt.Errorf("insert shift: %w", err)
	}
	return nil
}

func (p *PostgresStore) FindOpen(ctx context.Context) (*Shift, error) {
	s, err := scanShift(p.db.QueryRow(ctx, "SELECT "+shiftColumns+" FROM cashier_sessions WHERE status = 'open' LIMIT 1"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open shift: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Shift, error) {
	s, err := scanShift(p.db.QueryRow(ctx, "SELECT "+shiftColumns+" FROM cashier_sessions WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get shift %s: %w", id, err)
	}
	return s, nil
}

// CloseIfOpen is a single conditional UPDATE; a concurrent close that already
// flipped the status makes it match no row.
func (p *PostgresStore) CloseIfOpen(ctx context.Context, id string, c Closing) (*Shift, error) {
	s, err := scanShift(p.db.QueryRow(ctx,
		"UPDATE cashier_sessions SET status = 'closed', closed_at = $2, closed_by = $3, final_balance = $4, "+
			"total_sales = $5, total_expenses = $6, expected_balance = $7, notes = $8 "+
			"WHERE id = $1 AND status = 'open' RETURNING "+shiftColumns,
		id, c.ClosedAt, c.ClosedBy, int64(c.FinalBalance), int64(c.TotalSales), int64(c.TotalExpenses), int64(c.ExpectedBalance), c.Notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoOpenShift
		}
		return nil, fmt.Errorf("close shift %s: %w", id, err)
	}
	return s, nil
}

func (p *PostgresStore) Transactions(ctx context.Context, shiftID string) ([]Transaction, error) {
	rows, err := p.db.Query(ctx, "SELECT id, shift_id, type, amount, created_at FROM transactions WHERE shift_id = $1 ORDER BY created_at", shiftID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx     Transaction
			typ    string
			amount int64
		)
		if err := rows.Scan(&tx.ID, &tx.ShiftID, &typ, &amount, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = TransactionType(typ)
		tx.Amount = Money(amount)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) AddTransaction(ctx context.Context, tx *Transaction) error {
	_, err := p.db.Exec(ctx,
		"INSERT INTO transactions (id, shift_id, type, amount, created_at) VALUES ($1, $2, $3, $4, $5)",
		tx.ID, tx.ShiftID, string(tx.Type), int64(tx.Amount), tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
