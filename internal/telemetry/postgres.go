package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// copier is the part of pgxpool.Pool the sink needs; pgxmock satisfies it in tests.
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var telemetryColumns = []string{"event_type", "severity", "context", "user_id", "created_at"}

// PostgresSink bulk-inserts batches into telemetry_events with COPY.
type PostgresSink struct {
	db    copier
	table string
}

func NewPostgresSink(db copier) *PostgresSink {
	return &PostgresSink{db: db, table: "telemetry_events"}
}

func (s *PostgresSink) WriteBatch(ctx context.Context, events []Event) error {
	rows := make([][]interface{}, 0, len(events))
	for _, ev := range events {
		blob, err := json.Marshal(ev.SinkContext())
		if err != nil {
			return fmt.Errorf("encode context for %s: %w", ev.Type, err)
		}
		var userID interface{}
		if ev.UserID != "" {
			userID = ev.UserID
		}
		rows = append(rows, []interface{}{ev.Type, string(ev.Severity), string(blob), userID, ev.Timestamp})
	}
	n, err := s.db.CopyFrom(ctx, pgx.Identifier{s.table}, telemetryColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return err
	}
	if int(n) != len(rows) {
		return fmt.Errorf("telemetry copy wrote %d of %d rows", n, len(rows))
	}
	return nil
}
