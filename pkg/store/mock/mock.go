// Package mock provides in-memory test doubles for the store interfaces.
//
// Each mock records every method call for assertion in tests, exposes
// exported *Err fields that force failures, and keeps real in-memory state so
// upsert/read sequences behave like the PostgreSQL implementation (including
// the access-count bump on memory upserts). All mocks are safe for concurrent
// use via an internal [sync.Mutex].
//
// Typical usage:
//
//	ms := mock.NewMemoryStore()
//	ms.Seed(store.Memory{UserID: "u1", Key: "k", Value: "v", Category: store.CategoryPersonal})
//
//	// inject ms into the system under test …
//
//	if got := ms.CallCount("UpsertMemory"); got != 1 {
//	    t.Errorf("expected 1 UpsertMemory call, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mirevald/daybook/pkg/store"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// ─────────────────────────────────────────────────────────────────────────────
// CalendarStore mock
// ─────────────────────────────────────────────────────────────────────────────

// CalendarStore is a configurable test double for [store.CalendarStore].
// Events live in an in-memory slice; range queries filter and sort it the way
// the real store does. GetUserEvents ignores the daysBack cutoff and returns
// every event for the user so tests with pinned clocks stay deterministic.
type CalendarStore struct {
	mu    sync.Mutex
	calls []Call

	// Events is the backing slice. Seed it directly or via CreateEvent.
	Events []store.CalendarEvent

	nextID int

	// CreateEventErr is returned by CreateEvent when non-nil.
	CreateEventErr error

	// GetEventsErr is returned by GetEventsByDateRange and GetUserEvents
	// when non-nil.
	GetEventsErr error

	// UpdateEventErr is returned by UpdateEvent when non-nil.
	UpdateEventErr error

	// DeleteEventErr is returned by DeleteEvent when non-nil.
	DeleteEventErr error
}

var _ store.CalendarStore = (*CalendarStore)(nil)

// NewCalendarStore creates an empty calendar store double.
func NewCalendarStore() *CalendarStore {
	return &CalendarStore{}
}

// Calls returns a copy of all recorded method invocations.
func (m *CalendarStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *CalendarStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CreateEvent implements [store.CalendarStore].
func (m *CalendarStore) CreateEvent(_ context.Context, event store.CalendarEvent) (store.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "CreateEvent", Args: []any{event}})
	if m.CreateEventErr != nil {
		return store.CalendarEvent{}, m.CreateEventErr
	}
	m.nextID++
	if event.ID == "" {
		event.ID = fmt.Sprintf("event-%d", m.nextID)
	}
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	m.Events = append(m.Events, event)
	return event, nil
}

// GetEventsByDateRange implements [store.CalendarStore].
func (m *CalendarStore) GetEventsByDateRange(_ context.Context, userID, startDate, endDate string) ([]store.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetEventsByDateRange", Args: []any{userID, startDate, endDate}})
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	out := []store.CalendarEvent{}
	for _, e := range m.Events {
		if e.UserID == userID && e.Date >= startDate && e.Date <= endDate {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

// UpdateEvent implements [store.CalendarStore].
func (m *CalendarStore) UpdateEvent(_ context.Context, id string, patch store.EventPatch) (*store.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "UpdateEvent", Args: []any{id, patch}})
	if m.UpdateEventErr != nil {
		return nil, m.UpdateEventErr
	}
	for i := range m.Events {
		if m.Events[i].ID != id {
			continue
		}
		e := &m.Events[i]
		if patch.Title != nil {
			e.Title = *patch.Title
		}
		if patch.Description != nil {
			e.Description = *patch.Description
		}
		if patch.Date != nil {
			e.Date = *patch.Date
		}
		if patch.Time != nil {
			e.Time = *patch.Time
		}
		if patch.Type != nil {
			e.Type = *patch.Type
		}
		if patch.Location != nil {
			e.Location = *patch.Location
		}
		if patch.AllDay != nil {
			e.AllDay = *patch.AllDay
		}
		if patch.Recurring != nil {
			e.Recurring = *patch.Recurring
		}
		if patch.RecurringType != nil {
			e.RecurringType = *patch.RecurringType
		}
		e.UpdatedAt = time.Now()
		out := *e
		return &out, nil
	}
	return nil, nil
}

// DeleteEvent implements [store.CalendarStore].
func (m *CalendarStore) DeleteEvent(_ context.Context, id string) (*store.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteEvent", Args: []any{id}})
	if m.DeleteEventErr != nil {
		return nil, m.DeleteEventErr
	}
	for i := range m.Events {
		if m.Events[i].ID == id {
			out := m.Events[i]
			m.Events = append(m.Events[:i], m.Events[i+1:]...)
			return &out, nil
		}
	}
	return nil, nil
}

// GetUserEvents implements [store.CalendarStore].
func (m *CalendarStore) GetUserEvents(_ context.Context, userID string, daysBack int) ([]store.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetUserEvents", Args: []any{userID, daysBack}})
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	out := []store.CalendarEvent{}
	for _, e := range m.Events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

func sortEvents(events []store.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].Time < events[j].Time
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// MemoryStore mock
// ─────────────────────────────────────────────────────────────────────────────

// MemoryStore is a configurable test double for [store.MemoryStore]. Memories
// are kept in a per-user map so upserts observe the same access-count
// semantics as the PostgreSQL implementation.
type MemoryStore struct {
	mu    sync.Mutex
	calls []Call

	// Now supplies timestamps; defaults to time.Now. Override to pin the
	// clock in ordering-sensitive tests.
	Now func() time.Time

	memories      map[string]map[string]store.Memory // userID → key → memory
	conversations []store.Conversation
	feedback      []store.Feedback
	nextConvID    int64

	// UpsertMemoryErr is returned by UpsertMemory when non-nil.
	UpsertMemoryErr error

	// GetMemoryErr is returned by GetMemory when non-nil.
	GetMemoryErr error

	// GetMemoriesErr is returned by GetMemoriesByCategory and
	// GetAllUserMemories when non-nil.
	GetMemoriesErr error

	// StoreConversationErr is returned by StoreConversation when non-nil.
	StoreConversationErr error

	// GetConversationHistoryErr is returned by GetConversationHistory when
	// non-nil.
	GetConversationHistoryErr error

	// StoreFeedbackErr is returned by StoreFeedback when non-nil.
	StoreFeedbackErr error
}

var _ store.MemoryStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty memory store double.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memories: make(map[string]map[string]store.Memory)}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Calls returns a copy of all recorded method invocations.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *MemoryStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Seed inserts memories directly, bypassing call recording and upsert
// semantics. Zero timestamps are filled with the mock clock.
func (m *MemoryStore) Seed(memories ...store.Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range memories {
		if mem.CreatedAt.IsZero() {
			mem.CreatedAt = m.now()
		}
		if mem.LastAccessed.IsZero() {
			mem.LastAccessed = m.now()
		}
		if mem.AccessCount == 0 {
			mem.AccessCount = 1
		}
		user := m.memories[mem.UserID]
		if user == nil {
			user = make(map[string]store.Memory)
			m.memories[mem.UserID] = user
		}
		user[mem.Key] = mem
	}
}

// SeedConversations inserts conversations directly, assigning IDs in order.
func (m *MemoryStore) SeedConversations(conversations ...store.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range conversations {
		m.nextConvID++
		if c.ID == 0 {
			c.ID = m.nextConvID
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = m.now()
		}
		m.conversations = append(m.conversations, c)
	}
}

// Feedback returns a copy of all stored feedback records.
func (m *MemoryStore) Feedback() []store.Feedback {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Feedback, len(m.feedback))
	copy(out, m.feedback)
	return out
}

// UpsertMemory implements [store.MemoryStore].
func (m *MemoryStore) UpsertMemory(_ context.Context, mem store.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "UpsertMemory", Args: []any{mem}})
	if m.UpsertMemoryErr != nil {
		return m.UpsertMemoryErr
	}
	user := m.memories[mem.UserID]
	if user == nil {
		user = make(map[string]store.Memory)
		m.memories[mem.UserID] = user
	}
	now := m.now()
	if existing, ok := user[mem.Key]; ok {
		existing.Value = mem.Value
		existing.Category = mem.Category
		existing.RelevanceScore = mem.RelevanceScore
		existing.AccessCount++
		existing.LastAccessed = now
		user[mem.Key] = existing
		return nil
	}
	mem.CreatedAt = now
	mem.LastAccessed = now
	mem.AccessCount = 1
	user[mem.Key] = mem
	return nil
}

// GetMemory implements [store.MemoryStore].
func (m *MemoryStore) GetMemory(_ context.Context, userID, key string) (*store.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetMemory", Args: []any{userID, key}})
	if m.GetMemoryErr != nil {
		return nil, m.GetMemoryErr
	}
	if mem, ok := m.memories[userID][key]; ok {
		out := mem
		return &out, nil
	}
	return nil, nil
}

// GetMemoriesByCategory implements [store.MemoryStore].
func (m *MemoryStore) GetMemoriesByCategory(_ context.Context, userID string, category store.Category, limit int) ([]store.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetMemoriesByCategory", Args: []any{userID, category, limit}})
	if m.GetMemoriesErr != nil {
		return nil, m.GetMemoriesErr
	}
	out := []store.Memory{}
	for _, mem := range m.memories[userID] {
		if mem.Category == category {
			out = append(out, mem)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetAllUserMemories implements [store.MemoryStore].
func (m *MemoryStore) GetAllUserMemories(_ context.Context, userID string) ([]store.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetAllUserMemories", Args: []any{userID}})
	if m.GetMemoriesErr != nil {
		return nil, m.GetMemoriesErr
	}
	out := []store.Memory{}
	for _, mem := range m.memories[userID] {
		out = append(out, mem)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// UpdateMemoryAccessStats implements [store.MemoryStore].
func (m *MemoryStore) UpdateMemoryAccessStats(_ context.Context, userID, key string, accessCount int, lastAccessed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "UpdateMemoryAccessStats", Args: []any{userID, key, accessCount, lastAccessed}})
	if mem, ok := m.memories[userID][key]; ok {
		mem.AccessCount = accessCount
		mem.LastAccessed = lastAccessed
		m.memories[userID][key] = mem
	}
	return nil
}

// DeleteOldMemories implements [store.MemoryStore].
func (m *MemoryStore) DeleteOldMemories(_ context.Context, cutoff time.Time, category store.Category, minRelevance float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteOldMemories", Args: []any{cutoff, category, minRelevance}})
	deleted := 0
	for _, user := range m.memories {
		for key, mem := range user {
			if mem.CreatedAt.Before(cutoff) && mem.Category == category && mem.RelevanceScore < minRelevance {
				delete(user, key)
				deleted++
			}
		}
	}
	return deleted, nil
}

// DeleteUserMemories implements [store.MemoryStore].
func (m *MemoryStore) DeleteUserMemories(_ context.Context, userID string, category store.Category) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteUserMemories", Args: []any{userID, category}})
	user := m.memories[userID]
	deleted := 0
	for key, mem := range user {
		if category == "" || mem.Category == category {
			delete(user, key)
			deleted++
		}
	}
	return deleted, nil
}

// StoreConversation implements [store.MemoryStore].
func (m *MemoryStore) StoreConversation(_ context.Context, c store.Conversation) (store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "StoreConversation", Args: []any{c}})
	if m.StoreConversationErr != nil {
		return store.Conversation{}, m.StoreConversationErr
	}
	m.nextConvID++
	c.ID = m.nextConvID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.conversations = append(m.conversations, c)
	return c, nil
}

// GetConversationHistory implements [store.MemoryStore].
func (m *MemoryStore) GetConversationHistory(_ context.Context, userID, sessionID string, limit int) ([]store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetConversationHistory", Args: []any{userID, sessionID, limit}})
	if m.GetConversationHistoryErr != nil {
		return nil, m.GetConversationHistoryErr
	}
	if limit <= 0 {
		limit = 10
	}
	matched := []store.Conversation{}
	for _, c := range m.conversations {
		if c.UserID != userID {
			continue
		}
		if sessionID != "" && c.SessionID != sessionID {
			continue
		}
		matched = append(matched, c)
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// GetConversation implements [store.MemoryStore].
func (m *MemoryStore) GetConversation(_ context.Context, id int64) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetConversation", Args: []any{id}})
	for _, c := range m.conversations {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

// StoreFeedback implements [store.MemoryStore].
func (m *MemoryStore) StoreFeedback(_ context.Context, f store.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "StoreFeedback", Args: []any{f}})
	if m.StoreFeedbackErr != nil {
		return m.StoreFeedbackErr
	}
	f.ID = int64(len(m.feedback) + 1)
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.now()
	}
	m.feedback = append(m.feedback, f)
	return nil
}

// MemorySnapshot returns a copy of one user's memories keyed by memory key.
// Intended for test assertions.
func (m *MemoryStore) MemorySnapshot(userID string) map[string]store.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]store.Memory, len(m.memories[userID]))
	for k, v := range m.memories[userID] {
		out[k] = v
	}
	return out
}
