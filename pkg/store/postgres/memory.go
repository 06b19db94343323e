package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"
)

// intentFromString maps a stored intent column back to the typed enum,
// treating anything unexpected as UNKNOWN.
func intentFromString(s string) types.Intent {
	in := types.Intent(s)
	if !in.IsValid() {
		return types.IntentUnknown
	}
	return in
}

// UpsertMemory implements [store.MemoryStore]. Inserts start AccessCount at 1;
// conflicts on (user_id, key) increment the stored count and advance
// last_accessed while replacing value, category, and relevance.
func (s *Store) UpsertMemory(ctx context.Context, m store.Memory) error {
	const q = `
		INSERT INTO memories
		    (user_id, key, value, category, relevance_score, created_at, last_accessed, access_count)
		VALUES ($1, $2, $3, $4, $5, now(), now(), 1)
		ON CONFLICT (user_id, key) DO UPDATE SET
		    value           = EXCLUDED.value,
		    category        = EXCLUDED.category,
		    relevance_score = EXCLUDED.relevance_score,
		    last_accessed   = now(),
		    access_count    = memories.access_count + 1`

	_, err := s.pool.Exec(ctx, q, m.UserID, m.Key, m.Value, m.Category, m.RelevanceScore)
	if err != nil {
		return fmt.Errorf("memory store: upsert memory: %w", err)
	}
	return nil
}

// GetMemory implements [store.MemoryStore].
func (s *Store) GetMemory(ctx context.Context, userID, key string) (*store.Memory, error) {
	const q = `
		SELECT user_id, key, value, category, relevance_score, created_at, last_accessed, access_count
		FROM   memories
		WHERE  user_id = $1 AND key = $2`

	m, err := scanMemory(s.pool.QueryRow(ctx, q, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory store: get memory: %w", err)
	}
	return &m, nil
}

// GetMemoriesByCategory implements [store.MemoryStore].
func (s *Store) GetMemoriesByCategory(ctx context.Context, userID string, category store.Category, limit int) ([]store.Memory, error) {
	q := `
		SELECT user_id, key, value, category, relevance_score, created_at, last_accessed, access_count
		FROM   memories
		WHERE  user_id = $1 AND category = $2
		ORDER  BY relevance_score DESC, last_accessed DESC`

	args := []any{userID, category}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory store: get memories by category: %w", err)
	}
	return collectMemories(rows)
}

// GetAllUserMemories implements [store.MemoryStore].
func (s *Store) GetAllUserMemories(ctx context.Context, userID string) ([]store.Memory, error) {
	const q = `
		SELECT user_id, key, value, category, relevance_score, created_at, last_accessed, access_count
		FROM   memories
		WHERE  user_id = $1
		ORDER  BY category, relevance_score DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("memory store: get all user memories: %w", err)
	}
	return collectMemories(rows)
}

// UpdateMemoryAccessStats implements [store.MemoryStore].
func (s *Store) UpdateMemoryAccessStats(ctx context.Context, userID, key string, accessCount int, lastAccessed time.Time) error {
	const q = `
		UPDATE memories
		SET    access_count = $3, last_accessed = $4
		WHERE  user_id = $1 AND key = $2`

	_, err := s.pool.Exec(ctx, q, userID, key, accessCount, lastAccessed)
	if err != nil {
		return fmt.Errorf("memory store: update access stats: %w", err)
	}
	return nil
}

// DeleteOldMemories implements [store.MemoryStore].
func (s *Store) DeleteOldMemories(ctx context.Context, cutoff time.Time, category store.Category, minRelevance float64) (int, error) {
	const q = `
		DELETE FROM memories
		WHERE  created_at < $1
		  AND  category = $2
		  AND  relevance_score < $3`

	ct, err := s.pool.Exec(ctx, q, cutoff, category, minRelevance)
	if err != nil {
		return 0, fmt.Errorf("memory store: delete old memories: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// DeleteUserMemories implements [store.MemoryStore].
func (s *Store) DeleteUserMemories(ctx context.Context, userID string, category store.Category) (int, error) {
	q := "DELETE FROM memories WHERE user_id = $1"
	args := []any{userID}
	if category != "" {
		q += " AND category = $2"
		args = append(args, category)
	}

	ct, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("memory store: delete user memories: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// StoreConversation implements [store.MemoryStore].
func (s *Store) StoreConversation(ctx context.Context, c store.Conversation) (store.Conversation, error) {
	entities, err := json.Marshal(c.Entities)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("memory store: marshal entities: %w", err)
	}

	const q = `
		INSERT INTO conversations
		    (user_id, session_id, user_message, assistant_response, intent, entities, context_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = s.pool.QueryRow(ctx, q,
		c.UserID,
		c.SessionID,
		c.UserMessage,
		c.AssistantResponse,
		string(c.Intent),
		entities,
		c.ContextScore,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("memory store: store conversation: %w", err)
	}
	return c, nil
}

// GetConversationHistory implements [store.MemoryStore]. The most recent
// limit turns are selected and returned oldest first.
func (s *Store) GetConversationHistory(ctx context.Context, userID, sessionID string, limit int) ([]store.Conversation, error) {
	if limit <= 0 {
		limit = 10
	}

	args := []any{userID} // $1 = user id
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	q := `
		SELECT id, user_id, session_id, user_message, assistant_response, intent, entities, context_score, created_at
		FROM   conversations
		WHERE  user_id = $1`
	if sessionID != "" {
		q += "\n  AND  session_id = " + next(sessionID)
	}
	q += "\nORDER  BY created_at DESC, id DESC"
	q += "\nLIMIT " + next(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory store: get conversation history: %w", err)
	}

	conversations, err := collectConversations(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; callers get chronological order.
	for i, j := 0, len(conversations)-1; i < j; i, j = i+1, j-1 {
		conversations[i], conversations[j] = conversations[j], conversations[i]
	}
	return conversations, nil
}

// GetConversation implements [store.MemoryStore].
func (s *Store) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	const q = `
		SELECT id, user_id, session_id, user_message, assistant_response, intent, entities, context_score, created_at
		FROM   conversations
		WHERE  id = $1`

	c, err := scanConversation(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory store: get conversation: %w", err)
	}
	return &c, nil
}

// ListActiveUsers returns the distinct user IDs with at least one
// conversation since the cutoff. Used by the pattern-learning job to decide
// which users to scan.
func (s *Store) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	const q = `
		SELECT DISTINCT user_id
		FROM   conversations
		WHERE  created_at >= $1
		ORDER  BY user_id`

	rows, err := s.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("memory store: list active users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan user rows: %w", err)
	}
	return users, nil
}

// StoreFeedback implements [store.MemoryStore].
func (s *Store) StoreFeedback(ctx context.Context, f store.Feedback) error {
	const q = `
		INSERT INTO feedback (user_id, conversation_id, feedback_type, feedback_text)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, f.UserID, f.ConversationID, string(f.FeedbackType), f.FeedbackText)
	if err != nil {
		return fmt.Errorf("memory store: store feedback: %w", err)
	}
	return nil
}

// scanMemory reads one memory row.
func scanMemory(row pgx.Row) (store.Memory, error) {
	var m store.Memory
	err := row.Scan(
		&m.UserID,
		&m.Key,
		&m.Value,
		&m.Category,
		&m.RelevanceScore,
		&m.CreatedAt,
		&m.LastAccessed,
		&m.AccessCount,
	)
	return m, err
}

// collectMemories scans pgx rows into a slice of Memory values.
func collectMemories(rows pgx.Rows) ([]store.Memory, error) {
	memories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Memory, error) {
		return scanMemory(row)
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if memories == nil {
		memories = []store.Memory{}
	}
	return memories, nil
}

// scanConversation reads one conversation row, decoding the entities JSONB
// column.
func scanConversation(row pgx.Row) (store.Conversation, error) {
	var (
		c        store.Conversation
		intent   string
		entities []byte
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.SessionID,
		&c.UserMessage,
		&c.AssistantResponse,
		&intent,
		&entities,
		&c.ContextScore,
		&c.CreatedAt,
	)
	if err != nil {
		return store.Conversation{}, err
	}
	c.Intent = intentFromString(intent)
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &c.Entities); err != nil {
			return store.Conversation{}, fmt.Errorf("decode entities: %w", err)
		}
	}
	return c, nil
}

// collectConversations scans pgx rows into a slice of Conversation values.
func collectConversations(rows pgx.Rows) ([]store.Conversation, error) {
	conversations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Conversation, error) {
		return scanConversation(row)
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	return conversations, nil
}
