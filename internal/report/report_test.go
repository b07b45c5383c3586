package report

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/salescope/salescope/internal/warehouse"
)

type fakeClient struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (f *fakeClient) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func TestRenderErrorSkipsCompletionAndSQLBlock(t *testing.T) {
	client := &fakeClient{reply: "should not be used"}
	reporter := New(client)

	got := reporter.Render(context.Background(), "강남 매출", "DROP TABLE quarterly_sales", warehouse.RowSet{}, "금지된 키워드 DROP이 포함되어 있습니다")

	if client.calls != 0 {
		t.Fatalf("completion called %d times on error branch", client.calls)
	}
	if !strings.Contains(got, "요청을 처리하는 중 문제가 발생했습니다") {
		t.Fatalf("narrative = %q, want apology", got)
	}
	if !strings.Contains(got, "금지된 키워드 DROP") {
		t.Fatalf("narrative missing cause: %q", got)
	}
	if strings.Contains(got, "```sql") {
		t.Fatalf("error narrative must not carry a SQL block: %q", got)
	}
}

func TestRenderEmptyRowsUsesFixedMessage(t *testing.T) {
	client := &fakeClient{reply: "should not be used"}
	reporter := New(client)

	sqlText := "SELECT district_name FROM quarterly_sales WHERE year_quarter = '20991'"
	got := reporter.Render(context.Background(), "2099년 매출", sqlText, warehouse.RowSet{Columns: []string{"district_name"}}, "")

	if client.calls != 0 {
		t.Fatalf("completion called %d times on empty result", client.calls)
	}
	if !strings.Contains(got, noDataNarrative) {
		t.Fatalf("narrative = %q, want fixed no-data message", got)
	}
	if !strings.Contains(got, "```sql\n"+sqlText+"\n```") {
		t.Fatalf("narrative missing SQL audit block: %q", got)
	}
}

func TestRenderInterpretsRows(t *testing.T) {
	client := &fakeClient{reply: "강남역 상권이 총 12.5억 원으로 가장 높습니다."}
	reporter := New(client)

	rows := warehouse.RowSet{
		Columns: []string{"district_name", "total"},
		Rows: []warehouse.Row{
			{"district_name": "강남역", "total": float64(1250000000)},
			{"district_name": "홍대입구역", "total": float64(980000000)},
		},
	}
	sqlText := "SELECT district_name, SUM(monthly_sales_amount) AS total FROM quarterly_sales GROUP BY district_name"
	got := reporter.Render(context.Background(), "강남 매출이 얼마야?", sqlText, rows, "")

	if client.calls != 1 {
		t.Fatalf("completion calls = %d, want 1", client.calls)
	}
	if !strings.Contains(got, client.reply) {
		t.Fatalf("narrative missing interpretation: %q", got)
	}
	if !strings.HasSuffix(got, "```sql\n"+sqlText+"\n```") {
		t.Fatalf("SQL block not at narrative tail: %q", got)
	}
	if !strings.Contains(client.prompt, "강남 매출이 얼마야?") {
		t.Fatal("prompt missing original question")
	}
}

func TestRenderSerializesDecimalAsPlainInteger(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	reporter := New(client)

	rows := warehouse.RowSet{
		Columns: []string{"total"},
		Rows:    []warehouse.Row{{"total": float64(1250000000)}},
	}
	reporter.Render(context.Background(), "q", "SELECT 1", rows, "")

	if !strings.Contains(client.prompt, `"total": 1250000000`) {
		t.Fatalf("prompt does not carry integer form:\n%s", client.prompt)
	}
	if strings.Contains(client.prompt, "1.25e+09") || strings.Contains(client.prompt, "1250000000.") {
		t.Fatalf("prompt carries float form:\n%s", client.prompt)
	}
}

// Aggregates reach the report as pgx text NUMERIC or duckdb *big.Int, not
// float64. Run a textual NUMERIC through the executor and confirm it lands in
// the prompt as a plain integer, never quoted.
func TestRenderSerializesWarehouseDecimalAsPlainInteger(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	query := "SELECT SUM(monthly_sales_amount) AS total FROM quarterly_sales WHERE year_quarter = '20241'"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(
		sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("total").OfType("NUMERIC", "")).
			AddRow([]byte("1250000000.00")))

	rows, err := warehouse.NewSQLExecutor(db).Query(context.Background(), query)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	client := &fakeClient{reply: "ok"}
	New(client).Render(context.Background(), "강남 매출", query, rows, "")

	if !strings.Contains(client.prompt, `"total": 1250000000`) {
		t.Fatalf("prompt does not carry integer form:\n%s", client.prompt)
	}
	if strings.Contains(client.prompt, `"total": "`) {
		t.Fatalf("aggregate reached prompt as quoted string:\n%s", client.prompt)
	}
}

func TestRenderSerializesBigIntAsPlainInteger(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	reporter := New(client)

	rows := warehouse.RowSet{
		Columns: []string{"total"},
		Rows:    []warehouse.Row{{"total": big.NewInt(1250000000)}},
	}
	reporter.Render(context.Background(), "q", "SELECT 1", rows, "")

	if !strings.Contains(client.prompt, `"total": 1250000000`) {
		t.Fatalf("prompt does not carry integer form:\n%s", client.prompt)
	}
	if strings.Contains(client.prompt, `"total": "1250000000"`) {
		t.Fatalf("big int reached prompt quoted:\n%s", client.prompt)
	}
}

func TestRenderCoercesNonPrimitiveToString(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	reporter := New(client)

	rows := warehouse.RowSet{
		Columns: []string{"tags"},
		Rows:    []warehouse.Row{{"tags": []string{"a", "b"}}},
	}
	reporter.Render(context.Background(), "q", "SELECT 1", rows, "")

	if !strings.Contains(client.prompt, `"tags": "[a b]"`) {
		t.Fatalf("non-primitive not coerced to string form:\n%s", client.prompt)
	}
}

func TestRenderSerializesColumnsInSelectOrder(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	reporter := New(client)

	rows := warehouse.RowSet{
		Columns: []string{"year_quarter", "district_name", "total"},
		Rows:    []warehouse.Row{{"total": int64(7), "district_name": "강남역", "year_quarter": "20241"}},
	}
	reporter.Render(context.Background(), "q", "SELECT 1", rows, "")

	wantLine := `{"year_quarter": "20241", "district_name": "강남역", "total": 7}`
	if !strings.Contains(client.prompt, wantLine) {
		t.Fatalf("serialized row not in column order:\n%s", client.prompt)
	}
}

func TestRenderDegradesOnCompletionFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("upstream timeout")}
	reporter := New(client)

	rows := warehouse.RowSet{Columns: []string{"n"}, Rows: []warehouse.Row{{"n": int64(1)}}}
	got := reporter.Render(context.Background(), "q", "SELECT 1", rows, "")

	if !strings.Contains(got, "요청을 처리하는 중 문제가 발생했습니다") {
		t.Fatalf("narrative = %q, want apology on completion failure", got)
	}
}
