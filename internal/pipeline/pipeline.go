// Package pipeline orchestrates the four analysis stages as a small state
// machine with per-thread checkpointing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/salescope/salescope/internal/checkpoint"
	"github.com/salescope/salescope/internal/conversation"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/safety"
	"github.com/salescope/salescope/internal/warehouse"
)

type stage string

const (
	stageGenerateSQL    stage = "generate_sql"
	stageValidateSQL    stage = "validate_sql"
	stageExecuteSQL     stage = "execute_sql"
	stageGenerateReport stage = "generate_report"
	stageEnd            stage = "end"
)

// Generator produces a SQL statement for a natural language question.
type Generator interface {
	Generate(ctx context.Context, question string) (string, error)
}

// Reporter renders the final narrative from the run outcome.
type Reporter interface {
	Render(ctx context.Context, question, sqlText string, rows warehouse.RowSet, runErr string) string
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	ThreadID  string
	Narrative string
	SQL       string
	Rows      warehouse.RowSet
}

type Config struct {
	// MaxHistoryMessages caps the retained conversation history per thread.
	// Zero or less keeps everything.
	MaxHistoryMessages int
}

// Runner drives one question through generate, validate, execute and report,
// merging each stage's partial result into the thread's conversation state.
// Runs on distinct threads proceed concurrently; runs on the same thread are
// serialized by a per-thread lock so checkpoints never interleave.
type Runner struct {
	generator Generator
	executor  warehouse.Executor
	reporter  Reporter
	store     checkpoint.Store
	log       *slog.Logger
	cfg       Config

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

func NewRunner(generator Generator, executor warehouse.Executor, reporter Reporter, store checkpoint.Store, log *slog.Logger, cfg Config) *Runner {
	return &Runner{
		generator: generator,
		executor:  executor,
		reporter:  reporter,
		store:     store,
		log:       log,
		cfg:       cfg,
		threads:   make(map[string]*sync.Mutex),
	}
}

// Run executes the full pipeline for one question on the given thread. The
// returned narrative is always set; stage failures are folded into it rather
// than returned. Run only errors when the checkpoint store itself fails.
func (r *Runner) Run(ctx context.Context, threadID, question string) (Outcome, error) {
	lock := r.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	state, err := r.store.Load(ctx, threadID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		state = conversation.State{}
	case err != nil:
		return Outcome{}, fmt.Errorf("load thread %q: %w", threadID, err)
	}

	state.ResetRun(question)
	state.Apply(conversation.Update{
		Messages: []conversation.Message{{Role: conversation.RoleUser, Content: question}},
	})

	current := stageGenerateSQL
	for current != stageEnd {
		started := time.Now()
		update, next := r.step(ctx, current, &state)
		observability.ObservePipelineStage(string(current), time.Since(started))
		state.Apply(update)
		current = next
	}

	state.TrimHistory(r.cfg.MaxHistoryMessages)
	if err := r.store.Save(ctx, threadID, state); err != nil {
		return Outcome{}, fmt.Errorf("save thread %q: %w", threadID, err)
	}

	outcome := Outcome{
		ThreadID: threadID,
		SQL:      state.SQLQuery,
		Rows:     state.SQLResult,
	}
	if n := len(state.Messages); n > 0 {
		outcome.Narrative = state.Messages[n-1].Content
	}
	if state.Err != "" {
		observability.ObservePipelineRun("error")
	} else {
		observability.ObservePipelineRun("ok")
	}
	return outcome, nil
}

// step invokes one stage and decides the next transition. The only
// conditional edge is out of validation: a non-empty error skips execution.
func (r *Runner) step(ctx context.Context, current stage, state *conversation.State) (conversation.Update, stage) {
	switch current {
	case stageGenerateSQL:
		return r.generateSQL(ctx, state), stageValidateSQL
	case stageValidateSQL:
		update := r.validateSQL(state)
		if update.Err != nil && *update.Err != "" {
			return update, stageGenerateReport
		}
		if state.Err != "" {
			return update, stageGenerateReport
		}
		return update, stageExecuteSQL
	case stageExecuteSQL:
		return r.executeSQL(ctx, state), stageGenerateReport
	case stageGenerateReport:
		return r.generateReport(ctx, state), stageEnd
	default:
		return conversation.Update{}, stageEnd
	}
}

func (r *Runner) generateSQL(ctx context.Context, state *conversation.State) conversation.Update {
	sqlText, err := r.generator.Generate(ctx, state.OriginalQuery)
	if err != nil {
		r.log.Warn("sql generation failed", slog.String("error", err.Error()))
		msg := fmt.Sprintf("SQL 생성에 실패했습니다: %v", err)
		return conversation.Update{Err: &msg}
	}
	r.log.Debug("sql generated", slog.String("sql", sqlText))
	return conversation.Update{SQLQuery: &sqlText}
}

func (r *Runner) validateSQL(state *conversation.State) conversation.Update {
	if state.Err != "" {
		return conversation.Update{}
	}
	verdict := safety.Check(state.SQLQuery)
	if verdict.Allowed {
		return conversation.Update{}
	}
	if verdict.Keyword != "" {
		observability.ObserveSafetyRejection(verdict.Keyword)
	}
	r.log.Warn("sql rejected",
		slog.String("keyword", verdict.Keyword),
		slog.String("sql", state.SQLQuery))
	msg := fmt.Sprintf("보안 검증에 실패했습니다: %s", verdict.Reason)
	return conversation.Update{Err: &msg}
}

func (r *Runner) executeSQL(ctx context.Context, state *conversation.State) conversation.Update {
	rows, err := r.executor.Query(ctx, state.SQLQuery)
	if err != nil {
		r.log.Warn("sql execution failed", slog.String("error", err.Error()))
		// The raw backend message goes to the user as a debugging aid.
		msg := fmt.Sprintf("쿼리 실행에 실패했습니다: %v", err)
		return conversation.Update{Err: &msg}
	}
	r.log.Debug("sql executed", slog.Int("rows", len(rows.Rows)))
	return conversation.Update{SQLResult: &rows}
}

func (r *Runner) generateReport(ctx context.Context, state *conversation.State) conversation.Update {
	narrative := r.reporter.Render(ctx, state.OriginalQuery, state.SQLQuery, state.SQLResult, state.Err)
	return conversation.Update{
		Messages: []conversation.Message{{Role: conversation.RoleAssistant, Content: narrative}},
	}
}

func (r *Runner) threadLock(threadID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		r.threads[threadID] = lock
	}
	return lock
}
