package shifts

import (
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/telemetry"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Shift is one cashier session. It is created open, closed exactly once and
// never mutated afterwards.
type Shift struct {
	ID              string     `json:"id"`
	OpenedAt        time.Time  `json:"openedAt"`
	OpenedBy        string     `json:"openedBy"`
	InitialBalance  Money      `json:"initialBalance"`
	Status          Status     `json:"status"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	ClosedBy        string     `json:"closedBy,omitempty"`
	FinalBalance    *Money     `json:"finalBalance,omitempty"`
	TotalSales      *Money     `json:"totalSales,omitempty"`
	TotalExpenses   *Money     `json:"totalExpenses,omitempty"`
	ExpectedBalance *Money     `json:"expectedBalance,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type TransactionType string

const (
	TransactionSale    TransactionType = "sale"
	TransactionExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	return t == TransactionSale || t == TransactionExpense
}

// Transaction is a sale or expense. ShiftID is nil when it was recorded with no shift open.
type Transaction struct {
	ID        string          `json:"id"`
	ShiftID   *string         `json:"shiftId,omitempty"`
	Type      TransactionType `json:"type"`
	Amount    Money           `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Closing is the single update applied to an open shift.
type Closing struct {
	ClosedAt        time.Time
	ClosedBy        string
	FinalBalance    Money
	TotalSales      Money
	TotalExpenses   Money
	ExpectedBalance Money
	Notes           string
}

// CloseReport is the outcome of a successful close.
type CloseReport struct {
	Shift      Shift              `json:"shift"`
	Difference Money              `json:"difference"`
	Severity   telemetry.Severity `json:"severity"`
}

// ClosingReport is the notification payload sent after a close.
type ClosingReport struct {
	Event           string    `json:"event"`
	SessionID       string    `json:"session_id"`
	OpenedAt        time.Time `json:"opened_at"`
	ClosedAt        time.Time `json:"closed_at"`
	OpenedBy        string    `json:"opened_by"`
	ClosedBy        string    `json:"closed_by"`
	InitialBalance  Money     `json:"initial_balance"`
	FinalBalance    Money     `json:"final_balance"`
	TotalSales      Money     `json:"total_sales"`
	TotalExpenses   Money     `json:"total_expenses"`
	ExpectedBalance Money     `json:"expected_balance"`
	Difference      Money     `json:"difference"`
	AdminEmail      string    `json:"admin_email"`
	Notes           string    `json:"notes"`
}

func newClosingReport(s Shift, c Closing, diff Money, adminEmail string) ClosingReport {
	return ClosingReport{
		Event:           "cashier_closed",
		SessionID:       s.ID,
		OpenedAt:        s.OpenedAt,
		ClosedAt:        c.ClosedAt,
		OpenedBy:        s.OpenedBy,
		ClosedBy:        c.ClosedBy,
		InitialBalance:  s.InitialBalance,
		FinalBalance:    c.FinalBalance,
		TotalSales:      c.TotalSales,
		TotalExpenses:   c.TotalExpenses,
		ExpectedBalance: c.ExpectedBalance,
		Difference:      diff,
		AdminEmail:      adminEmail,
		Notes:           c.Notes,
	}
}

func (c Closing) apply(s *Shift) {
	closedAt := c.ClosedAt
	final, sales, expenses, expected := c.FinalBalance, c.TotalSales, c.TotalExpenses, c.ExpectedBalance
	s.Status = StatusClosed
	s.ClosedAt = &closedAt
	s.ClosedBy = c.ClosedBy
	s.FinalBalance = &final
	s.TotalSales = &sales
	s.TotalExpenses = &expenses
	s.ExpectedBalance = &expected
	s.Notes = c.Notes
}

func cloneShift(s *Shift) *Shift {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		cp.ClosedAt = &t
	}
	for _, p := range []**Money{&cp.FinalBalance, &cp.TotalSales, &cp.TotalExpenses, &cp.ExpectedBalance} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return &cp
}
