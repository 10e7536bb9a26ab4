package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/telemetry-core/internal/topic"
)

// Sink stores mapped rows.
type Sink interface {
	Insert(ctx context.Context, row Row) error
}

// Sample is a stored history row as returned by queries.
type Sample struct {
	TerminalTime time.Time      `json:"terminalTime"`
	GroupName    string         `json:"groupName"`
	CreatedAt    time.Time      `json:"createdAt"`
	Values       map[string]any `json:"values"`
}

// Query bounds a history read. Zero From/To leave that side open.
type Query struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// SQLiteSink writes each kind to its own table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates a sink over an open, migrated database.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// Insert appends row. Duplicate samples produce duplicate rows.
func (s *SQLiteSink) Insert(ctx context.Context, row Row) error {
	if row.spec == nil {
		return fmt.Errorf("%w: row was not mapped", ErrUnsupportedKind)
	}

	args := make([]any, 0, len(row.Values)+3)
	args = append(args, row.DeviceID, row.TerminalTime.UTC().Format(timeLayout), row.GroupName)
	args = append(args, row.Values...)

	if _, err := s.db.ExecContext(ctx, row.spec.insertSQL, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", row.spec.table, err)
	}
	return nil
}

// Samples reads a device's rows of kind, newest terminal time first.
// Null columns are omitted from Values.
func (s *SQLiteSink) Samples(ctx context.Context, kind topic.Kind, deviceID string, q Query) ([]Sample, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}

	var where []string
	args := []any{deviceID}
	where = append(where, "device_id = ?")
	if !q.From.IsZero() {
		where = append(where, "terminal_time >= ?")
		args = append(args, q.From.UTC().Format(timeLayout))
	}
	if !q.To.IsZero() {
		where = append(where, "terminal_time <= ?")
		args = append(args, q.To.UTC().Format(timeLayout))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := spec.selectSQL + " WHERE " + strings.Join(where, " AND ") +
		" ORDER BY terminal_time DESC, id DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", spec.table, err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		sample, err := scanSample(rows, spec)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", spec.table, err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", spec.table, err)
	}
	return out, nil
}

func scanSample(rows *sql.Rows, spec *tableSpec) (Sample, error) {
	var terminalTime, createdAt string
	var sample Sample

	values := make([]any, len(spec.fields))
	dest := make([]any, 0, len(values)+3)
	dest = append(dest, &terminalTime, &sample.GroupName, &createdAt)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return Sample{}, err
	}

	sample.TerminalTime, _ = time.Parse(timeLayout, terminalTime) //nolint:errcheck // written by Insert
	sample.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // schema default
	sample.Values = make(map[string]any, len(values))
	for i, f := range spec.fields {
		switch v := values[i].(type) {
		case nil:
		case []byte:
			sample.Values[f.key] = string(v)
		default:
			sample.Values[f.key] = v
		}
	}
	return sample, nil
}
