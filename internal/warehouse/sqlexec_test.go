package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"math/big"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// passthroughConverter lets sqlmock carry non-standard driver values such as
// *big.Int, mirroring what the duckdb driver returns at runtime.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v interface{}) (driver.Value, error) { return v, nil }

func TestSQLExecutorQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	query := "SELECT district_name, SUM(monthly_sales_amount) AS total FROM quarterly_sales GROUP BY district_name"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"district_name", "total"}).
			AddRow([]byte("강남역"), int64(1250000000)).
			AddRow([]byte("홍대입구역"), int64(980000000)))

	exec := NewSQLExecutor(db)
	got, err := exec.Query(context.Background(), query+";")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if len(got.Columns) != 2 || got.Columns[0] != "district_name" || got.Columns[1] != "total" {
		t.Fatalf("columns = %v", got.Columns)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	if name, ok := got.Rows[0]["district_name"].(string); !ok || name != "강남역" {
		t.Fatalf("district_name = %v, want normalized string", got.Rows[0]["district_name"])
	}
	if total, ok := got.Rows[0]["total"].(int64); !ok || total != 1250000000 {
		t.Fatalf("total = %v", got.Rows[0]["total"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLExecutorNormalizesDecimalColumns(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	// pgx scans NUMERIC aggregates as text; duckdb scans HUGEINT sums as
	// *big.Int. Both must come out as plain integers.
	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("district_name").OfType("TEXT", ""),
		sqlmock.NewColumn("total").OfType("NUMERIC", ""),
		sqlmock.NewColumn("grand_total").OfType("HUGEINT", nil),
	).AddRow("강남역", []byte("1250000000.00"), big.NewInt(2230000000))

	query := "SELECT district_name, SUM(monthly_sales_amount) AS total, SUM(weekend_sales_amount) AS grand_total FROM quarterly_sales GROUP BY district_name"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(rows)

	exec := NewSQLExecutor(db)
	got, err := exec.Query(context.Background(), query)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(got.Rows))
	}
	if total, ok := got.Rows[0]["total"].(int64); !ok || total != 1250000000 {
		t.Fatalf("total = %#v, want int64 1250000000", got.Rows[0]["total"])
	}
	if grand, ok := got.Rows[0]["grand_total"].(int64); !ok || grand != 2230000000 {
		t.Fatalf("grand_total = %#v, want int64 2230000000", got.Rows[0]["grand_total"])
	}
	if name, ok := got.Rows[0]["district_name"].(string); !ok || name != "강남역" {
		t.Fatalf("district_name = %#v, want untouched string", got.Rows[0]["district_name"])
	}
}

func TestSQLExecutorEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	query := "SELECT district_name FROM quarterly_sales WHERE year_quarter = '20991'"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"district_name"}))

	exec := NewSQLExecutor(db)
	got, err := exec.Query(context.Background(), query)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !got.Empty() {
		t.Fatalf("Empty() = false for zero rows")
	}
	if got.Rows == nil {
		t.Fatal("Rows should be an empty slice, not nil")
	}
}

func TestSQLExecutorQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT nope").WillReturnError(errors.New(`column "nope" does not exist`))

	exec := NewSQLExecutor(db)
	if _, err := exec.Query(context.Background(), "SELECT nope FROM quarterly_sales"); err == nil {
		t.Fatal("Query() returned no error for failing statement")
	}
}

func TestSQLExecutorRejectsEmptyStatement(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	exec := NewSQLExecutor(db)
	for _, sqlText := range []string{"", "   ", ";;;"} {
		if _, err := exec.Query(context.Background(), sqlText); err == nil {
			t.Fatalf("Query(%q) returned no error", sqlText)
		}
	}
}
