package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/salescope/salescope/internal/warehouse"
)

const maxQuestionBytes = 8 << 10

type askRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
}

type askResponse struct {
	ThreadID  string          `json:"thread_id"`
	Narrative string          `json:"narrative"`
	SQL       string          `json:"sql"`
	Columns   []string        `json:"columns"`
	Rows      []warehouse.Row `json:"rows"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "analysis pipeline is not configured", true, nil)
		return
	}

	var req askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a question field", false, nil)
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = newThreadID()
	}

	outcome, err := deps.Runner.Run(r.Context(), threadID, question)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "PIPELINE_FAILURE", err.Error(), true, map[string]any{"thread_id": threadID})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		ThreadID:  outcome.ThreadID,
		Narrative: outcome.Narrative,
		SQL:       outcome.SQL,
		Columns:   outcome.Rows.Columns,
		Rows:      outcome.Rows.Rows,
	})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema provider is not configured", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": deps.Schema.Describe(r.Context())})
}

func newThreadID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "thread-" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
