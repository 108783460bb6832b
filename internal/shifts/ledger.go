package shifts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/telemetry"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/metrics"
)

const (
	// DefaultWarningThreshold flags a close whose |difference| exceeds 1.00.
	DefaultWarningThreshold Money = 100
	followUpTimeout               = 15 * time.Second
)

// Notifier delivers the closing report to an outside party.
type Notifier interface {
	NotifyClose(ctx context.Context, r ClosingReport) error
}

// Archiver keeps a copy of the closing report.
type Archiver interface {
	ArchiveClose(ctx context.Context, r ClosingReport) error
}

type Options struct {
	WarningThreshold Money
	AdminEmail       string
	Notifier         Notifier
	Archiver         Archiver
	Recorder         telemetry.Recorder
	Now              func() time.Time
	NewID            func() string
}

// Ledger owns the cash register shift lifecycle of one terminal: the single
// current open shift, its reconciliation on close, and the follow-ups.
type Ledger struct {
	store     Store
	threshold Money
	admin     string
	notifier  Notifier
	archiver  Archiver
	recorder  telemetry.Recorder
	now       func() time.Time
	newID     func() string

	// opMu serialises open, close and recording so a transaction never lands
	// on a shift whose totals are being computed.
	opMu    sync.Mutex
	mu      sync.RWMutex
	current *Shift

	followUps sync.WaitGroup
}

func NewLedger(store Store, opts Options) *Ledger {
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = DefaultWarningThreshold
	}
	if opts.Recorder == nil {
		opts.Recorder = telemetry.RecorderFunc(func(telemetry.Event) {})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Ledger{
		store:     store,
		threshold: opts.WarningThreshold,
		admin:     opts.AdminEmail,
		notifier:  opts.Notifier,
		archiver:  opts.Archiver,
		recorder:  opts.Recorder,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Restore loads the shift left open by a previous run, if any.
func (l *Ledger) Restore(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	s, err := l.store.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("restore open shift: %w", err)
	}
	l.setCurrent(s)
	if s != nil {
		logger.InfoEvent().Str("component", "shifts").Str("shift_id", s.ID).Str("opened_by", s.OpenedBy).Msg("restored open shift")
	}
	return nil
}

// Current returns a copy of the open shift or nil.
func (l *Ledger) Current() *Shift {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneShift(l.current)
}

func (l *Ledger) setCurrent(s *Shift) {
	l.mu.Lock()
	l.current = cloneShift(s)
	l.mu.Unlock()
}

// Open starts a shift with the counted opening cash.
func (l *Ledger) Open(ctx context.Context, operator string, initial Money) (*Shift, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, ErrOperatorRequired
	}
	if initial < 0 {
		return nil, fmt.Errorf("%w: initial balance %s is negative", ErrInvalidAmount, initial)
	}

	l.opMu.Lock()
	defer l.opMu.Unlock()
	if l.Current() != nil {
		return nil, ErrShiftAlreadyOpen
	}

	s := &Shift{
		ID:             l.newID(),
		OpenedAt:       l.now().UTC(),
		OpenedBy:       operator,
		InitialBalance: initial,
		Status:         StatusOpen,
	}
	if err := l.store.Insert(ctx, s); err != nil {
		return nil, err
	}
	l.setCurrent(s)

	metrics.ShiftsOpened.Inc()
	l.recorder.Record(telemetry.Event{
		Type:     "cashier_open",
		Severity: telemetry.SeverityInfo,
		Message:  "shift opened",
		Context: map[string]interface{}{
			"operator":       operator,
			"initialBalance": initial.String(),
			"shiftId":        s.ID,
		},
	})
	return cloneShift(s), nil
}

// Close reconciles the open shift against the counted cash and closes it.
// If persisting the close fails the shift stays open and the call can be retried.
func (l *Ledger) Close(ctx context.Context, operator string, counted Money, notes string) (*CloseReport, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, ErrOperatorRequired
	}
	if counted < 0 {
		return nil, fmt.Errorf("%w: final balance %s is negative", ErrInvalidAmount, counted)
	}

	l.opMu.Lock()
	defer l.opMu.Unlock()
	cur := l.Current()
	if cur == nil {
		return nil, ErrNoOpenShift
	}

	txs, err := l.store.Transactions(ctx, cur.ID)
	if err != nil {
		return nil, fmt.Errorf("load transactions of shift %s: %w", cur.ID, err)
	}
	sales, expenses := Totals(txs)
	expected := cur.InitialBalance + sales - expenses
	diff := counted - expected

	closing := Closing{
		ClosedAt:        l.now().UTC(),
		ClosedBy:        operator,
		FinalBalance:    counted,
		TotalSales:      sales,
		TotalExpenses:   expenses,
		ExpectedBalance: expected,
		Notes:           strings.TrimSpace(notes),
	}
	closed, err := l.store.CloseIfOpen(ctx, cur.ID, closing)
	if err != nil {
		if errors.Is(err, ErrNoOpenShift) {
			// closed elsewhere; the stored close stays as it is
			l.setCurrent(nil)
			return nil, ErrNoOpenShift
		}
		return nil, err
	}

	severity := l.Severity(diff)
	metrics.ShiftsClosed.WithLabelValues(string(severity)).Inc()
	metrics.ShiftCloseDifference.Observe(diff.Float())
	l.recorder.Record(telemetry.Event{
		Type:     "cashier_close",
		Severity: severity,
		Message:  "shift closed",
		Context: map[string]interface{}{
			"operator":        operator,
			"shiftId":         cur.ID,
			"expectedBalance": expected.String(),
			"finalBalance":    counted.String(),
			"difference":      diff.String(),
		},
	})

	l.followUp(newClosingReport(*cur, closing, diff, l.admin))
	l.setCurrent(nil)

	return &CloseReport{Shift: *closed, Difference: diff, Severity: severity}, nil
}

// Severity classifies a close difference: warning when strictly above the threshold.
func (l *Ledger) Severity(diff Money) telemetry.Severity {
	if diff.Abs() > l.threshold {
		return telemetry.SeverityWarning
	}
	return telemetry.SeverityInfo
}

// Record stores a sale or expense against the open shift, or unattached when none is open.
func (l *Ledger) Record(ctx context.Context, typ TransactionType, amount Money) (*Transaction, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q", typ)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.opMu.Lock()
	defer l.opMu.Unlock()
	tx := &Transaction{ID: l.newID(), Type: typ, Amount: amount, CreatedAt: l.now().UTC()}
	if cur := l.Current(); cur != nil {
		id := cur.ID
		tx.ShiftID = &id
	}
	if err := l.store.AddTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Get returns a stored shift by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Shift, error) {
	return l.store.Get(ctx, id)
}

// Wait blocks until pending notifications and archive uploads finish.
func (l *Ledger) Wait() {
	l.followUps.Wait()
}

// followUp runs the best-effort notification and archive. Failures are only logged.
func (l *Ledger) followUp(r ClosingReport) {
	if l.notifier == nil && l.archiver == nil {
		return
	}
	l.followUps.Add(1)
	go func() {
		defer l.followUps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
		defer cancel()
		if l.notifier != nil {
			if err := l.notifier.NotifyClose(ctx, r); err != nil {
				logger.WarnEvent().Str("component", "shifts").Str("shift_id", r.SessionID).Err(err).Msg("closing notification failed")
			}
		}
		if l.archiver != nil {
			if err := l.archiver.ArchiveClose(ctx, r); err != nil {
				logger.WarnEvent().Str("component", "shifts").Str("shift_id", r.SessionID).Err(err).Msg("closing report archive failed")
			}
		}
	}()
}

// Totals sums sales and expenses.
func Totals(txs []Transaction) (sales, expenses Money) {
	for _, tx := range txs {
		switch tx.Type {
		case TransactionSale:
			sales += tx.Amount
		case TransactionExpense:
			expenses += tx.Amount
		}
	}
	return sales, expenses
}
