// Package postgres provides the PostgreSQL-backed implementation of the
// Daybook persistence contracts ([store.CalendarStore] and
// [store.MemoryStore]).
//
// Both contracts share a single [pgxpool.Pool]. [Migrate] creates all tables
// and indexes idempotently and is safe to run on every application start.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	ev, _ := st.CreateEvent(ctx, event)
//	_ = st.UpsertMemory(ctx, memory)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCalendarEvents = `
CREATE TABLE IF NOT EXISTS calendar_events (
    id             TEXT         PRIMARY KEY,
    user_id        TEXT         NOT NULL,
    title          TEXT         NOT NULL,
    description    TEXT         NOT NULL DEFAULT '',
    date           TEXT         NOT NULL,
    time           TEXT         NOT NULL DEFAULT '',
    type           TEXT         NOT NULL DEFAULT 'other',
    location       TEXT         NOT NULL DEFAULT '',
    all_day        BOOLEAN      NOT NULL DEFAULT FALSE,
    recurring      BOOLEAN      NOT NULL DEFAULT FALSE,
    recurring_type TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calendar_events_user_date
    ON calendar_events (user_id, date, time);
`

const ddlMemories = `
CREATE TABLE IF NOT EXISTS memories (
    user_id         TEXT              NOT NULL,
    key             TEXT              NOT NULL,
    value           TEXT              NOT NULL,
    category        TEXT              NOT NULL,
    relevance_score DOUBLE PRECISION  NOT NULL DEFAULT 1.0,
    created_at      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    last_accessed   TIMESTAMPTZ       NOT NULL DEFAULT now(),
    access_count    INTEGER           NOT NULL DEFAULT 1,
    PRIMARY KEY (user_id, key)
);

CREATE INDEX IF NOT EXISTS idx_memories_user_category
    ON memories (user_id, category, relevance_score DESC);

CREATE INDEX IF NOT EXISTS idx_memories_cleanup
    ON memories (category, created_at, relevance_score);
`

const ddlConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id                 BIGSERIAL         PRIMARY KEY,
    user_id            TEXT              NOT NULL,
    session_id         TEXT              NOT NULL DEFAULT '',
    user_message       TEXT              NOT NULL,
    assistant_response TEXT              NOT NULL DEFAULT '',
    intent             TEXT              NOT NULL DEFAULT 'UNKNOWN',
    entities           JSONB             NOT NULL DEFAULT '{}',
    context_score      DOUBLE PRECISION  NOT NULL DEFAULT 1.0,
    created_at         TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_session
    ON conversations (user_id, session_id, created_at);
`

const ddlFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    id              BIGSERIAL    PRIMARY KEY,
    user_id         TEXT         NOT NULL,
    conversation_id BIGINT       NOT NULL,
    feedback_type   TEXT         NOT NULL,
    feedback_text   TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feedback_user
    ON feedback (user_id, created_at);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlCalendarEvents,
		ddlMemories,
		ddlConversations,
		ddlFeedback,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
