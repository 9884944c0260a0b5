package clickhouse

import (
	"context"
	"strings"

	"github.com/eventsift/eventsift/pkg/escape"
	"github.com/pkg/errors"
)

// Writer batch-inserts processed event rows.
type Writer struct {
	client *Client
}

// NewWriter returns a Writer backed by client.
func NewWriter(client *Client) *Writer {
	return &Writer{client: client}
}

// RowFromEvent orders the values of a processed event to match columns.
// Missing plain columns become nil. A missing nested column (one whose name
// contains a dot) must instead become an array matching the length of its
// sibling columns: nested ClickHouse columns are stored as sibling arrays
// that are expected to have equal lengths, and a new nested column may be
// absent from events processed before it was added to the schema. If a
// sibling with the same prefix is present, a null-filled array of the
// sibling's length is substituted; with no siblings an empty array is safe.
func RowFromEvent(columns []string, event map[string]any) []any {
	values := make([]any, 0, len(columns))
	for _, name := range columns {
		value, ok := event[name]
		if (!ok || value == nil) && strings.Contains(name, ".") {
			value = missingNestedValue(name, event)
		}
		values = append(values, value)
	}
	return values
}

func missingNestedValue(name string, event map[string]any) any {
	prefix := name[:strings.Index(name, ".")+1]

	for key, value := range event {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		sibling, ok := value.([]any)
		if !ok {
			continue
		}
		return make([]any, len(sibling))
	}
	return []any{}
}

// WriteRows inserts rows into table in one batch. Every row must have one
// value per column, in column order; use RowFromEvent to build rows from
// processed events.
func (w *Writer) WriteRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	escaped := make([]string, 0, len(columns))
	for _, c := range columns {
		escaped = append(escaped, escape.Identifier(c))
	}

	batch, err := w.client.conn.PrepareBatch(ctx,
		"INSERT INTO "+escape.Identifier(table)+" ("+strings.Join(escaped, ", ")+")")
	if err != nil {
		return errors.Wrapf(err, "failed to prepare batch insert into %s", table)
	}

	for _, row := range rows {
		if len(row) != len(columns) {
			return errors.Errorf("row has %d values, expected %d", len(row), len(columns))
		}
		if err := batch.Append(row...); err != nil {
			return errors.Wrap(err, "failed to append row to batch")
		}
	}

	return errors.Wrap(batch.Send(), "failed to send batch")
}
