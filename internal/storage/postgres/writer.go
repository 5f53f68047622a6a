// Package postgres persists processed event batches.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ata-pipeline/internal/field"
	"ata-pipeline/internal/metrics"
	"ata-pipeline/internal/model"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/rs/zerolog"
)

// maxParams is PostgreSQL's bind-parameter limit per statement.
const maxParams = 65535

// Open connects through pgx's database/sql driver and pings.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EventWriter bulk-inserts batches into the events table, skipping rows
// whose (site_name, event_id) already exists.
type EventWriter struct {
	db      *sql.DB
	table   string // sanitized, possibly schema-qualified
	metrics *metrics.Metrics
}

// NewEventWriter writes into table ("event" or "schema.event"). m may be
// nil.
func NewEventWriter(db *sql.DB, table string, m *metrics.Metrics) *EventWriter {
	return &EventWriter{
		db:      db,
		table:   pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		metrics: m,
	}
}

// Write
// -----
// Inserts every record of b with ON CONFLICT (site_name, event_id) DO
// NOTHING and returns the number of rows actually inserted.
//   - empty batch: no database call, returns 0
//   - all chunks run in one transaction; any error rolls everything back
func (w *EventWriter) Write(ctx context.Context, b model.Batch) (int64, error) {
	l := zerolog.Ctx(ctx)

	if b.Len() == 0 {
		l.Info().Msg("no rows to insert")
		return 0, nil
	}
	if len(b.Fields) == 0 {
		return 0, fmt.Errorf("write events: batch has rows but no fields")
	}

	cols := make([]string, len(b.Fields))
	for i, f := range b.Fields {
		cols[i] = pgx.Identifier{f}.Sanitize()
	}
	perStmt := maxParams / len(cols)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	var inserted int64
	for start := 0; start < b.Len(); start += perStmt {
		end := min(start+perStmt, b.Len())

		query, args, err := w.insertStatement(cols, b.Fields, b.Records[start:end])
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("write events: insert rows %d-%d: %w", start, end, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("write events: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write events: commit: %w", err)
	}

	skipped := int64(b.Len()) - inserted
	site, _ := b.Records[0].String(field.SiteName)
	w.metrics.Written(site, inserted, skipped)
	l.Info().
		Str("table", w.table).
		Int64("inserted", inserted).
		Int64("skipped", skipped).
		Msg("wrote events")

	return inserted, nil
}

func (w *EventWriter) insertStatement(cols, fields []string, recs []model.Record) (string, []any, error) {
	var sb strings.Builder
	sb.Grow(64 + len(recs)*len(cols)*6)

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", w.table, strings.Join(cols, ", "))

	args := make([]any, 0, len(recs)*len(fields))
	for i, r := range recs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, f := range fields {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)

			v, err := dbValue(r[f])
			if err != nil {
				return "", nil, fmt.Errorf("write events: field %s: %w", f, err)
			}
			args = append(args, v)
		}
		sb.WriteByte(')')
	}
	fmt.Fprintf(&sb, " ON CONFLICT (%s, %s) DO NOTHING",
		pgx.Identifier{field.SiteName}.Sanitize(),
		pgx.Identifier{field.EventID}.Sanitize(),
	)
	return sb.String(), args, nil
}

// dbValue maps pipeline values to driver values. Decoded JSON goes back
// to text for json/jsonb columns.
func dbValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, int64, float64, bool, time.Time:
		return t, nil
	case model.Category:
		return string(t), nil
	case int:
		return int64(t), nil
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return fmt.Sprint(v), nil
}
