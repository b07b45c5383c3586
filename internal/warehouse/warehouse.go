// Package warehouse executes read-only SQL against the sales data backend.
package warehouse

import "context"

// Row maps column names to scanned values for one result row.
type Row map[string]any

// RowSet is a query result. Columns preserves the select-list order so
// downstream serialization is deterministic; each Row holds the values keyed
// by column name.
type RowSet struct {
	Columns []string
	Rows    []Row
}

// Empty reports whether the result carries no rows.
func (rs RowSet) Empty() bool {
	return len(rs.Rows) == 0
}

// Executor runs one SQL statement and returns its rows.
type Executor interface {
	Query(ctx context.Context, sqlText string) (RowSet, error)
}
