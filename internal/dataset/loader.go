package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// createTableSQL provisions the sales table when it does not exist yet.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS quarterly_sales (
    year_quarter TEXT NOT NULL,
    district_type TEXT NOT NULL,
    district_code TEXT NOT NULL,
    district_name TEXT NOT NULL,
    service_category_code TEXT NOT NULL,
    service_category_name TEXT NOT NULL,
    monthly_sales_amount BIGINT NOT NULL,
    monthly_sales_count BIGINT NOT NULL,
    weekday_sales_amount BIGINT NOT NULL,
    weekend_sales_amount BIGINT NOT NULL,
    sales_time_11_14 BIGINT NOT NULL,
    sales_time_17_21 BIGINT NOT NULL,
    male_sales_amount BIGINT NOT NULL,
    female_sales_amount BIGINT NOT NULL,
    sales_by_age_10s BIGINT NOT NULL,
    sales_by_age_20s BIGINT NOT NULL,
    sales_by_age_30s BIGINT NOT NULL,
    sales_by_age_40s BIGINT NOT NULL,
    sales_by_age_50s BIGINT NOT NULL,
    sales_by_age_60s_above BIGINT NOT NULL
)`

const createCheckpointTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_state (
    thread_id TEXT PRIMARY KEY,
    state JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Loader writes parsed records into Postgres in multi-row insert batches.
type Loader struct {
	db        *sql.DB
	batchSize int
}

func NewLoader(db *sql.DB, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Loader{db: db, batchSize: batchSize}
}

// EnsureSchema creates the sales and checkpoint tables if missing.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create quarterly_sales: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createCheckpointTableSQL); err != nil {
		return fmt.Errorf("create conversation_state: %w", err)
	}
	return nil
}

// Load inserts all records inside a single transaction and returns the row
// count. A failing batch rolls the whole load back.
func (l *Loader) Load(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for start := 0; start < len(records); start += l.batchSize {
		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		if err := insertBatch(ctx, tx, batch); err != nil {
			return 0, fmt.Errorf("insert batch at row %d: %w", start, err)
		}
		total += len(batch)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load tx: %w", err)
	}
	return total, nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, batch []Record) error {
	var b strings.Builder
	b.WriteString("INSERT INTO quarterly_sales (")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(Columns))
	for i, record := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < len(Columns); j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*len(Columns)+j+1)
		}
		b.WriteString(")")
		args = append(args, record.values()...)
	}

	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

func (r Record) values() []any {
	return []any{
		r.YearQuarter,
		r.DistrictType,
		r.DistrictCode,
		r.DistrictName,
		r.ServiceCategoryCode,
		r.ServiceCategoryName,
		r.MonthlySalesAmount,
		r.MonthlySalesCount,
		r.WeekdaySalesAmount,
		r.WeekendSalesAmount,
		r.SalesTime11To14,
		r.SalesTime17To21,
		r.MaleSalesAmount,
		r.FemaleSalesAmount,
		r.SalesByAge10s,
		r.SalesByAge20s,
		r.SalesByAge30s,
		r.SalesByAge40s,
		r.SalesByAge50s,
		r.SalesByAge60sAbove,
	}
}
