package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// SQLExecutor runs statements against any database/sql backend. The Postgres
// path opens it over a pgx stdlib connection; the DuckDB snapshot engine
// reuses it after mounting parquet views.
type SQLExecutor struct {
	db *sql.DB
}

func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{db: db}
}

func (e *SQLExecutor) Query(ctx context.Context, sqlText string) (RowSet, error) {
	statement := stripTrailingSemicolons(sqlText)
	if statement == "" {
		return RowSet{}, fmt.Errorf("sql is required")
	}

	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		return RowSet{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return RowSet{}, fmt.Errorf("query columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return RowSet{}, fmt.Errorf("query column types: %w", err)
	}
	decimalCols := make([]bool, len(columns))
	for i, columnType := range columnTypes {
		decimalCols[i] = isDecimalType(columnType.DatabaseTypeName())
	}

	result := RowSet{Columns: columns, Rows: make([]Row, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return RowSet{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i], decimalCols[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return RowSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// isDecimalType reports whether the column carries an arbitrary-precision
// numeric the drivers do not scan into a plain Go number. pgx hands NUMERIC
// aggregates back as text and duckdb hands HUGEINT sums back as *big.Int.
func isDecimalType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL", "HUGEINT":
		return true
	}
	return false
}

// normalizeValue converts driver-specific scan types into plain Go values so
// the report layer sees a uniform shape regardless of backend. Decimal
// columns are truncated to int64 so aggregate amounts stay plain integers
// instead of reaching the report as opaque strings.
func normalizeValue(value any, decimalCol bool) any {
	switch typed := value.(type) {
	case []byte:
		if decimalCol {
			return decimalToInt64(string(typed))
		}
		return string(typed)
	case string:
		if decimalCol {
			return decimalToInt64(typed)
		}
		return typed
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case float64:
		if decimalCol {
			return int64(typed)
		}
		return typed
	case float32:
		if decimalCol {
			return int64(typed)
		}
		return typed
	default:
		return typed
	}
}

// decimalToInt64 truncates a textual decimal to its integral part. Text that
// does not parse as a number is returned unchanged.
func decimalToInt64(raw string) any {
	raw = strings.TrimSpace(raw)
	integral := raw
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		integral = raw[:i]
	}
	if parsed, err := strconv.ParseInt(integral, 10, 64); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(parsed)
	}
	return raw
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
