package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/salescope/salescope/internal/conversation"
)

// PostgresStore keeps one jsonb row per thread in conversation_state,
// surviving process restarts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, threadID string) (conversation.State, error) {
	query := `
SELECT state
FROM conversation_state
WHERE thread_id = $1`

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, threadID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.State{}, ErrNotFound
		}
		return conversation.State{}, fmt.Errorf("load checkpoint %q: %w", threadID, err)
	}

	var state conversation.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return conversation.State{}, fmt.Errorf("decode checkpoint %q: %w", threadID, err)
	}
	return state, nil
}

func (s *PostgresStore) Save(ctx context.Context, threadID string, state conversation.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", threadID, err)
	}

	query := `
INSERT INTO conversation_state (thread_id, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (thread_id)
DO UPDATE SET state = EXCLUDED.state, updated_at = now()`
	if _, err := s.db.ExecContext(ctx, query, threadID, raw); err != nil {
		return fmt.Errorf("save checkpoint %q: %w", threadID, err)
	}
	return nil
}
