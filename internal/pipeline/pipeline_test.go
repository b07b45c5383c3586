package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/salescope/salescope/internal/checkpoint"
	"github.com/salescope/salescope/internal/report"
	"github.com/salescope/salescope/internal/warehouse"
)

type fakeGenerator struct {
	sql   string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(context.Context, string) (string, error) {
	f.calls++
	return f.sql, f.err
}

type fakeExecutor struct {
	rows  warehouse.RowSet
	err   error
	calls int
	last  string
}

func (f *fakeExecutor) Query(_ context.Context, sqlText string) (warehouse.RowSet, error) {
	f.calls++
	f.last = sqlText
	return f.rows, f.err
}

type fakeCompletion struct {
	reply string
	err   error
}

func (f *fakeCompletion) Complete(context.Context, string) (string, error) {
	return f.reply, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newRunner(gen Generator, exec warehouse.Executor, client *fakeCompletion, cfg Config) (*Runner, *checkpoint.MemoryStore) {
	store := checkpoint.NewMemoryStore()
	runner := NewRunner(gen, exec, report.New(client), store, discardLogger(), cfg)
	return runner, store
}

func TestRunHappyPath(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT district_name, SUM(monthly_sales_amount) AS total FROM quarterly_sales WHERE year_quarter = '20241' AND district_name LIKE '%강남%' GROUP BY district_name"}
	exec := &fakeExecutor{rows: warehouse.RowSet{
		Columns: []string{"district_name", "total"},
		Rows:    []warehouse.Row{{"district_name": "강남역", "total": int64(1250000000)}},
	}}
	client := &fakeCompletion{reply: "강남역 상권의 2024년 1분기 매출은 총 1,250,000,000원입니다."}
	runner, store := newRunner(gen, exec, client, Config{})

	outcome, err := runner.Run(context.Background(), "thread-1", "2024년 1분기 강남 매출")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if exec.calls != 1 || exec.last != gen.sql {
		t.Fatalf("executor calls = %d, last = %q", exec.calls, exec.last)
	}
	if !strings.Contains(outcome.Narrative, client.reply) {
		t.Fatalf("narrative = %q", outcome.Narrative)
	}
	if !strings.HasSuffix(outcome.Narrative, "```sql\n"+gen.sql+"\n```") {
		t.Fatalf("narrative missing SQL tail: %q", outcome.Narrative)
	}
	if outcome.SQL != gen.sql || len(outcome.Rows.Rows) != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}

	saved, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(saved.Messages) != 2 {
		t.Fatalf("saved messages = %d, want user + assistant", len(saved.Messages))
	}
	if saved.Messages[0].Content != "2024년 1분기 강남 매출" {
		t.Fatalf("first message = %+v", saved.Messages[0])
	}
}

func TestRunRejectsForbiddenSQLWithoutExecution(t *testing.T) {
	gen := &fakeGenerator{sql: "DROP TABLE quarterly_sales;"}
	exec := &fakeExecutor{}
	client := &fakeCompletion{reply: "should not be called"}
	runner, _ := newRunner(gen, exec, client, Config{})

	outcome, err := runner.Run(context.Background(), "thread-1", "테이블을 삭제해줘")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("executor called %d times after rejection", exec.calls)
	}
	if !strings.Contains(outcome.Narrative, "요청을 처리하는 중 문제가 발생했습니다") {
		t.Fatalf("narrative = %q, want apology", outcome.Narrative)
	}
	if !strings.Contains(outcome.Narrative, "DROP") {
		t.Fatalf("narrative does not name rejected keyword: %q", outcome.Narrative)
	}
	if strings.Contains(outcome.Narrative, "```sql") {
		t.Fatalf("rejected run must not carry SQL block: %q", outcome.Narrative)
	}
}

func TestRunGenerationFailureShortCircuits(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("completion unavailable")}
	exec := &fakeExecutor{}
	runner, _ := newRunner(gen, exec, &fakeCompletion{}, Config{})

	outcome, err := runner.Run(context.Background(), "thread-1", "강남 매출")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.calls != 0 {
		t.Fatal("executor called after generation failure")
	}
	if !strings.Contains(outcome.Narrative, "SQL 생성에 실패했습니다") {
		t.Fatalf("narrative = %q", outcome.Narrative)
	}
}

func TestRunExecutionFailureSurfacesBackendError(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT nope FROM quarterly_sales"}
	exec := &fakeExecutor{err: errors.New(`column "nope" does not exist`)}
	runner, _ := newRunner(gen, exec, &fakeCompletion{}, Config{})

	outcome, err := runner.Run(context.Background(), "thread-1", "강남 매출")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(outcome.Narrative, `column "nope" does not exist`) {
		t.Fatalf("narrative does not surface backend error: %q", outcome.Narrative)
	}
}

func TestRunEmptyResultUsesFixedMessage(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT district_name FROM quarterly_sales WHERE year_quarter = '20991'"}
	exec := &fakeExecutor{rows: warehouse.RowSet{Columns: []string{"district_name"}}}
	client := &fakeCompletion{reply: "should not be called"}
	runner, _ := newRunner(gen, exec, client, Config{})

	outcome, err := runner.Run(context.Background(), "thread-1", "2099년 매출")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(outcome.Narrative, "해당 조건에 맞는 데이터가 없습니다") {
		t.Fatalf("narrative = %q", outcome.Narrative)
	}
	if strings.Contains(outcome.Narrative, client.reply) {
		t.Fatal("interpretation completion ran for an empty result")
	}
}

func TestRunRestoresHistoryAcrossRuns(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT 1"}
	exec := &fakeExecutor{rows: warehouse.RowSet{Columns: []string{"n"}, Rows: []warehouse.Row{{"n": int64(1)}}}}
	runner, store := newRunner(gen, exec, &fakeCompletion{reply: "ok"}, Config{})

	if _, err := runner.Run(context.Background(), "thread-1", "첫번째 질문"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := runner.Run(context.Background(), "thread-1", "두번째 질문"); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	saved, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(saved.Messages) != 4 {
		t.Fatalf("messages = %d, want 4 across two runs", len(saved.Messages))
	}
	if saved.Messages[0].Content != "첫번째 질문" || saved.Messages[2].Content != "두번째 질문" {
		t.Fatalf("history order wrong: %+v", saved.Messages)
	}
	if saved.OriginalQuery != "두번째 질문" {
		t.Fatalf("original query = %q, want latest question", saved.OriginalQuery)
	}
}

func TestRunNewRunClearsPriorError(t *testing.T) {
	gen := &fakeGenerator{sql: "DROP TABLE quarterly_sales"}
	exec := &fakeExecutor{rows: warehouse.RowSet{Columns: []string{"n"}, Rows: []warehouse.Row{{"n": int64(1)}}}}
	runner, store := newRunner(gen, exec, &fakeCompletion{reply: "ok"}, Config{})

	if _, err := runner.Run(context.Background(), "thread-1", "테이블 삭제"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	gen.sql = "SELECT 1"
	outcome, err := runner.Run(context.Background(), "thread-1", "강남 매출")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if strings.Contains(outcome.Narrative, "문제가 발생했습니다") {
		t.Fatalf("prior error leaked into new run: %q", outcome.Narrative)
	}

	saved, _ := store.Load(context.Background(), "thread-1")
	if saved.Err != "" {
		t.Fatalf("saved error = %q, want cleared", saved.Err)
	}
}

func TestRunCapsHistory(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT 1"}
	exec := &fakeExecutor{rows: warehouse.RowSet{Columns: []string{"n"}, Rows: []warehouse.Row{{"n": int64(1)}}}}
	runner, store := newRunner(gen, exec, &fakeCompletion{reply: "ok"}, Config{MaxHistoryMessages: 4})

	for i := 0; i < 5; i++ {
		if _, err := runner.Run(context.Background(), "thread-1", fmt.Sprintf("질문 %d", i)); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}

	saved, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(saved.Messages) != 4 {
		t.Fatalf("messages = %d, want cap of 4", len(saved.Messages))
	}
	if saved.Messages[2].Content != "질문 4" {
		t.Fatalf("latest question missing from capped history: %+v", saved.Messages)
	}
}

func TestRunConcurrentThreadsDoNotInterleaveHistory(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT 1"}
	exec := &fakeExecutor{rows: warehouse.RowSet{Columns: []string{"n"}, Rows: []warehouse.Row{{"n": int64(1)}}}}
	runner, store := newRunner(gen, exec, &fakeCompletion{reply: "ok"}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			threadID := fmt.Sprintf("thread-%d", n)
			for j := 0; j < 3; j++ {
				if _, err := runner.Run(context.Background(), threadID, fmt.Sprintf("질문 %d-%d", n, j)); err != nil {
					t.Errorf("Run(%s) error = %v", threadID, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		saved, err := store.Load(context.Background(), fmt.Sprintf("thread-%d", i))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(saved.Messages) != 6 {
			t.Fatalf("thread-%d messages = %d, want 6", i, len(saved.Messages))
		}
	}
}
