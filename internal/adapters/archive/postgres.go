// Package archive writes polled readings into a SQL table for long-term
// queries beyond what the in-memory store and the rolling log cover.
package archive

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/grillbaer/data-logger/internal/ports"
)

type PostgresSink struct {
	db        *sql.DB
	tableName string
}

func Open(connString, table string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	return NewPostgresSink(db, table), nil
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, tableName: table}
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) WriteBatch(batch []ports.QueuedReading) error {
	if len(batch) == 0 {
		return nil
	}

	// Idempotent via the (source_id, ts) unique key, so a replayed batch
	// after a crash does not duplicate rows.
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.tableName)
	b.WriteString(" (source_id, ts, status, value, unit) VALUES ")

	args := make([]any, 0, len(batch)*5)
	for i, q := range batch {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5))

		var value sql.NullFloat64
		if q.Reading.OK() {
			value = sql.NullFloat64{Float64: q.Reading.Value, Valid: true}
		}
		args = append(args,
			q.SourceID,
			q.Reading.Timestamp,
			string(q.Reading.Status),
			value,
			q.Reading.Unit,
		)
	}

	b.WriteString(" ON CONFLICT (source_id, ts) DO NOTHING")

	_, err := p.db.Exec(b.String(), args...)
	return err
}

func (p *PostgresSink) Close() error { return p.db.Close() }

var _ ports.BatchSink = (*PostgresSink)(nil)

// Schema returns the DDL for the archive table, for operators bootstrapping
// a fresh database.
func Schema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	value DOUBLE PRECISION,
	unit TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (source_id, ts)
)`, table)
}
