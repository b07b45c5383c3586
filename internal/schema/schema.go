// Package schema describes the queryable sales table for prompt construction.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Provider renders a textual description of the analytics table. Failures are
// reported inside the returned string rather than as an error so that prompt
// construction downstream always receives a well-formed fragment.
type Provider interface {
	Describe(ctx context.Context) string
}

// CatalogProvider reads column metadata for one table from
// information_schema, which both the Postgres and DuckDB backends expose.
type CatalogProvider struct {
	db    *sql.DB
	table string
}

func NewCatalogProvider(db *sql.DB, table string) *CatalogProvider {
	return &CatalogProvider{db: db, table: table}
}

func (p *CatalogProvider) Describe(ctx context.Context) string {
	if p.db == nil {
		return "schema unavailable: no database configured"
	}

	rows, err := p.db.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_name = $1
ORDER BY ordinal_position`, p.table)
	if err != nil {
		return fmt.Sprintf("schema unavailable: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var b strings.Builder
	count := 0
	fmt.Fprintf(&b, "Table: %s\nColumns:\n", p.table)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return fmt.Sprintf("schema unavailable: %v", err)
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, dataType)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Sprintf("schema unavailable: %v", err)
	}
	if count == 0 {
		return fmt.Sprintf("schema unavailable: table %q not found", p.table)
	}
	return b.String()
}

// StaticProvider returns a fixed description of the quarterly_sales table,
// annotated with column meanings. Used when no catalog connection is
// configured.
type StaticProvider struct{}

func (StaticProvider) Describe(_ context.Context) string {
	return staticSchema
}

const staticSchema = `Table: quarterly_sales
Columns:
- year_quarter: TEXT (quarter key, e.g. '20241' = Q1 2024)
- district_type: TEXT (commercial district type)
- district_code: TEXT (commercial district code)
- district_name: TEXT (commercial district name, e.g. '강남역', '성수동카페거리')
- service_category_code: TEXT (service category code)
- service_category_name: TEXT (service category name, e.g. '한식음식점', '커피-음료')
- monthly_sales_amount: BIGINT (average monthly sales amount)
- monthly_sales_count: BIGINT (average monthly sales transaction count)
- weekday_sales_amount: BIGINT (weekday sales amount)
- weekend_sales_amount: BIGINT (weekend sales amount)
- sales_time_11_14: BIGINT (lunchtime 11:00-14:00 sales amount)
- sales_time_17_21: BIGINT (evening 17:00-21:00 sales amount)
- male_sales_amount: BIGINT (sales to male customers)
- female_sales_amount: BIGINT (sales to female customers)
- sales_by_age_10s: BIGINT (sales to customers in their 10s)
- sales_by_age_20s: BIGINT (sales to customers in their 20s)
- sales_by_age_30s: BIGINT (sales to customers in their 30s)
- sales_by_age_40s: BIGINT (sales to customers in their 40s)
- sales_by_age_50s: BIGINT (sales to customers in their 50s)
- sales_by_age_60s_above: BIGINT (sales to customers aged 60+)
`
