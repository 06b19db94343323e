// Package store defines the persistence contracts of the Daybook assistant
// core: a [CalendarStore] for events and a [MemoryStore] for per-user
// memories, conversations, and feedback.
//
// Both interfaces are public so that external packages can supply alternative
// backends (PostgreSQL, in-memory, …) without depending on daybook internals.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by operations that require an existing record
// (e.g. [CalendarStore.UpdateEvent] on an unknown id) when wrapped errors are
// inspected with errors.Is. Lookups that may legitimately miss return
// (nil, nil) instead.
var ErrNotFound = errors.New("store: not found")

// CalendarStore persists calendar events and answers range queries.
type CalendarStore interface {
	// CreateEvent inserts a new event and returns it with ID, CreatedAt, and
	// UpdatedAt populated. The caller must have validated the event
	// invariants (non-empty title, AllDay implies empty Time).
	CreateEvent(ctx context.Context, event CalendarEvent) (CalendarEvent, error)

	// GetEventsByDateRange returns all events owned by userID with
	// startDate <= Date <= endDate (ISO dates, inclusive), ordered by
	// (Date, Time). Returns an empty (non-nil) slice when nothing matches.
	GetEventsByDateRange(ctx context.Context, userID, startDate, endDate string) ([]CalendarEvent, error)

	// UpdateEvent applies patch to the event with the given id and returns
	// the updated row. Returns (nil, nil) when the id does not exist.
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (*CalendarEvent, error)

	// DeleteEvent removes the event with the given id and returns the
	// deleted row. Returns (nil, nil) when the id does not exist.
	DeleteEvent(ctx context.Context, id string) (*CalendarEvent, error)

	// GetUserEvents returns the user's events dated within the last daysBack
	// days (inclusive of today), ordered by (Date, Time). daysBack <= 0
	// applies the implementation default of 30.
	GetUserEvents(ctx context.Context, userID string, daysBack int) ([]CalendarEvent, error)
}

// MemoryStore persists per-user memories, conversation history, and feedback.
type MemoryStore interface {
	// UpsertMemory inserts or replaces the memory identified by
	// (m.UserID, m.Key). On insert AccessCount starts at 1; on conflict the
	// existing row's AccessCount is incremented and LastAccessed advances.
	// Value, Category, and RelevanceScore always take m's values.
	UpsertMemory(ctx context.Context, m Memory) error

	// GetMemory returns the memory for (userID, key), or (nil, nil) when it
	// does not exist.
	GetMemory(ctx context.Context, userID, key string) (*Memory, error)

	// GetMemoriesByCategory returns up to limit memories in the category,
	// ordered by (RelevanceScore desc, LastAccessed desc). limit <= 0 means
	// no cap. Returns an empty (non-nil) slice when nothing matches.
	GetMemoriesByCategory(ctx context.Context, userID string, category Category, limit int) ([]Memory, error)

	// GetAllUserMemories returns every memory for userID ordered by
	// (Category, RelevanceScore desc). Returns an empty (non-nil) slice when
	// the user has none.
	GetAllUserMemories(ctx context.Context, userID string) ([]Memory, error)

	// UpdateMemoryAccessStats overwrites the access bookkeeping of one
	// memory without touching its value. Missing rows are not an error.
	UpdateMemoryAccessStats(ctx context.Context, userID, key string, accessCount int, lastAccessed time.Time) error

	// DeleteOldMemories removes memories created before cutoff, in the given
	// category, with RelevanceScore below minRelevance, across all users.
	// Returns the number of rows removed.
	DeleteOldMemories(ctx context.Context, cutoff time.Time, category Category, minRelevance float64) (int, error)

	// DeleteUserMemories removes the user's memories. An empty category
	// clears all of them; otherwise only the given category is cleared.
	// Returns the number of rows removed.
	DeleteUserMemories(ctx context.Context, userID string, category Category) (int, error)

	// StoreConversation appends one turn and returns it with ID and
	// CreatedAt populated.
	StoreConversation(ctx context.Context, c Conversation) (Conversation, error)

	// GetConversationHistory returns the most recent turns for userID in
	// chronological order (oldest first). An empty sessionID spans all
	// sessions. limit <= 0 applies the implementation default of 10.
	// Returns an empty (non-nil) slice when nothing matches.
	GetConversationHistory(ctx context.Context, userID, sessionID string, limit int) ([]Conversation, error)

	// GetConversation returns the turn with the given id, or (nil, nil) when
	// it does not exist.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// StoreFeedback appends one feedback record.
	StoreFeedback(ctx context.Context, f Feedback) error
}
