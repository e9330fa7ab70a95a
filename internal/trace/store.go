package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store archives reasoning traces in a local SQLite database for later
// inspection. Archiving is best-effort; callers treat failures as warnings.
type Store struct {
	db *sql.DB
}

// Stored is an archived trace row.
type Stored struct {
	ID             string
	ConversationID string
	MessageID      string
	Trace          Trace
	CreatedAt      time.Time
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the traces table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reasoning_traces (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			routing_intent TEXT NOT NULL,
			verification TEXT NOT NULL,
			trace_json BLOB NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_traces_conversation
			ON reasoning_traces(conversation_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("create traces schema: %w", err)
	}
	return nil
}

// Save archives a trace for a finalized response.
func (s *Store) Save(ctx context.Context, conversationID, messageID string, t *Trace) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reasoning_traces (
			id, conversation_id, message_id, routing_intent, verification,
			trace_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		"trace_"+uuid.New().String(), conversationID, messageID,
		string(t.Routing.Intent), string(t.Verification),
		payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// ByConversation returns archived traces for a conversation, oldest first.
func (s *Store) ByConversation(ctx context.Context, conversationID string) ([]Stored, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, message_id, trace_json, created_at
		FROM reasoning_traces
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var (
			st        Stored
			payload   []byte
			createdAt string
		)
		if err := rows.Scan(&st.ID, &st.ConversationID, &st.MessageID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if err := json.Unmarshal(payload, &st.Trace); err != nil {
			return nil, fmt.Errorf("unmarshal trace %s: %w", st.ID, err)
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			st.CreatedAt = ts
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
