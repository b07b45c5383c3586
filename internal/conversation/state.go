// Package conversation holds the per-thread analysis state that survives
// across pipeline runs.
package conversation

import "github.com/salescope/salescope/internal/warehouse"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the shared record each pipeline stage reads and amends. Messages
// is append-only history; the remaining fields describe the current run and
// are reset when a new run starts on the thread.
type State struct {
	Messages      []Message        `json:"messages"`
	OriginalQuery string           `json:"original_query"`
	SQLQuery      string           `json:"sql_query"`
	SQLResult     warehouse.RowSet `json:"sql_result"`
	Err           string           `json:"error"`
}

// Update is a stage's partial result. Messages are appended; each non-nil
// scalar overwrites the state field. A stage that leaves a field nil leaves
// the prior value intact, so stages cannot clobber each other by accident.
type Update struct {
	Messages      []Message
	OriginalQuery *string
	SQLQuery      *string
	SQLResult     *warehouse.RowSet
	Err           *string
}

// Apply merges one stage update into the state.
func (s *State) Apply(u Update) {
	s.Messages = append(s.Messages, u.Messages...)
	if u.OriginalQuery != nil {
		s.OriginalQuery = *u.OriginalQuery
	}
	if u.SQLQuery != nil {
		s.SQLQuery = *u.SQLQuery
	}
	if u.SQLResult != nil {
		s.SQLResult = *u.SQLResult
	}
	if u.Err != nil {
		s.Err = *u.Err
	}
}

// TrimHistory drops the oldest messages so at most max remain. A max of zero
// or less leaves the history untouched.
func (s *State) TrimHistory(max int) {
	if max <= 0 || len(s.Messages) <= max {
		return
	}
	trimmed := make([]Message, max)
	copy(trimmed, s.Messages[len(s.Messages)-max:])
	s.Messages = trimmed
}

// ResetRun clears the run-scoped fields while keeping history, preparing the
// state for a new question on the same thread.
func (s *State) ResetRun(question string) {
	s.OriginalQuery = question
	s.SQLQuery = ""
	s.SQLResult = warehouse.RowSet{}
	s.Err = ""
}
