// Package sqlgen turns natural language questions into SQL statements over
// the quarterly sales table.
package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/salescope/salescope/internal/completion"
	"github.com/salescope/salescope/internal/schema"
)

// Generator builds the generation prompt from the live table schema and asks
// the completion backend for a single SQL statement.
type Generator struct {
	client completion.Client
	schema schema.Provider
	table  string
}

func New(client completion.Client, provider schema.Provider, table string) *Generator {
	return &Generator{client: client, schema: provider, table: table}
}

// Generate produces one SQL statement answering the question. The raw
// completion is stripped of markdown fencing; generation failures propagate
// to the caller so the pipeline can report them.
func (g *Generator) Generate(ctx context.Context, question string) (string, error) {
	prompt := g.buildPrompt(ctx, question)
	raw, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	sql := stripMarkdownSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("generate sql: model returned empty statement")
	}
	return sql, nil
}

func (g *Generator) buildPrompt(ctx context.Context, question string) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert for a Seoul commercial district sales database.\n")
	b.WriteString("Write a single PostgreSQL-compatible SQL query that answers the question.\n\n")
	b.WriteString(g.schema.Describe(ctx))
	b.WriteString(glossary)
	fmt.Fprintf(&b, examples, g.table, g.table, g.table)
	b.WriteString("Rules:\n")
	b.WriteString("- Return ONLY the SQL statement. No markdown, no explanation.\n")
	b.WriteString("- Read-only SELECT or WITH queries only.\n")
	b.WriteString("- When the question names a district or category, match it with district_name or service_category_name.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(question))
	return b.String()
}

const glossary = `
Notes:
- year_quarter encodes year and quarter as YYYYQ, e.g. '20241' is Q1 2024.
- Amounts are Korean won over the quarter; counts are transaction counts.
- district_name and service_category_name hold Korean labels.
`

const examples = `
Example 1. Question: Total Q1 2024 sales for Korean restaurants in Gangnam.
SELECT SUM(monthly_sales_amount) AS total_sales
FROM %s
WHERE year_quarter = '20241'
  AND district_name LIKE '%%강남%%'
  AND service_category_name = '한식음식점';

Example 2. Question: Which districts grew most from Q4 2023 to Q1 2024?
WITH prev AS (
  SELECT district_name, SUM(monthly_sales_amount) AS total
  FROM %s
  WHERE year_quarter = '20234'
  GROUP BY district_name
), curr AS (
  SELECT district_name, SUM(monthly_sales_amount) AS total
  FROM %s
  WHERE year_quarter = '20241'
  GROUP BY district_name
)
SELECT curr.district_name, curr.total - prev.total AS growth
FROM curr
JOIN prev ON prev.district_name = curr.district_name
ORDER BY growth DESC
LIMIT 10;
`

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
