// Package memory implements the per-user memory service: durable facts,
// conversation history, context extraction, pattern mining, contextual
// recommendations, and periodic cleanup.
//
// The service fronts a [store.MemoryStore] with two advisory in-process
// caches: a 10-minute TTL cache for single memories and a 30-minute cache of
// the last 20 turns per (user, session). Cache entries are written only after
// a successful store write, and a miss is always safe — the store remains the
// single source of truth.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirevald/daybook/internal/observe"
	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"
)

const (
	memoryCacheTTL       = 10 * time.Minute
	conversationCacheTTL = 30 * time.Minute

	// sessionCacheTurns bounds the per-session conversation cache.
	sessionCacheTurns = 20
)

// Service is the memory service. Safe for concurrent use.
type Service struct {
	memories store.MemoryStore
	events   store.CalendarStore
	metrics  *observe.Metrics
	now      func() time.Time

	mu        sync.Mutex
	memCache  map[string]memCacheEntry
	convCache map[string]convCacheEntry
}

type memCacheEntry struct {
	mem     store.Memory
	expires time.Time
}

type convCacheEntry struct {
	turns   []store.Conversation
	expires time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics replaces the metrics instance (defaults to
// [observe.DefaultMetrics]).
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a memory service over the given stores. The calendar store is
// only read, for pattern mining.
func New(memories store.MemoryStore, events store.CalendarStore, opts ...Option) *Service {
	s := &Service{
		memories:  memories,
		events:    events,
		now:       time.Now,
		memCache:  make(map[string]memCacheEntry),
		convCache: make(map[string]convCacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

func cacheKey(userID, key string) string {
	return userID + "\x00" + key
}

// StoreMemory upserts one fact. Non-string values are serialized to JSON.
// The upsert bumps AccessCount and advances LastAccessed in the store.
func (s *Service) StoreMemory(ctx context.Context, userID, key string, value any, category store.Category, relevance float64) error {
	serialized, err := serializeValue(value)
	if err != nil {
		return fmt.Errorf("memory: serialize %q: %w", key, err)
	}

	now := s.now()
	m := store.Memory{
		UserID:         userID,
		Key:            key,
		Value:          serialized,
		Category:       category,
		RelevanceScore: relevance,
		CreatedAt:      now,
		LastAccessed:   now,
		AccessCount:    1,
	}
	if err := s.memories.UpsertMemory(ctx, m); err != nil {
		return fmt.Errorf("memory: upsert %q: %w", key, err)
	}

	// The store owns the authoritative access stats; drop any stale cache
	// entry rather than guessing at the new count.
	s.mu.Lock()
	delete(s.memCache, cacheKey(userID, key))
	s.mu.Unlock()
	return nil
}

// GetMemory returns the memory for (userID, key), or nil when it does not
// exist. Cached reads skip the store for up to 10 minutes; a store read
// refreshes the access stats before filling the cache.
func (s *Service) GetMemory(ctx context.Context, userID, key string) (*store.Memory, error) {
	ck := cacheKey(userID, key)
	now := s.now()

	s.mu.Lock()
	if e, ok := s.memCache[ck]; ok {
		if now.Before(e.expires) {
			s.mu.Unlock()
			s.metrics.RecordCacheLookup(ctx, "memory", true)
			m := e.mem
			return &m, nil
		}
		delete(s.memCache, ck)
	}
	s.mu.Unlock()
	s.metrics.RecordCacheLookup(ctx, "memory", false)

	m, err := s.memories.GetMemory(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("memory: get %q: %w", key, err)
	}
	if m == nil {
		return nil, nil
	}

	m.AccessCount++
	m.LastAccessed = now
	if err := s.memories.UpdateMemoryAccessStats(ctx, userID, key, m.AccessCount, m.LastAccessed); err != nil {
		// Access bookkeeping is best-effort; the read still succeeded.
		slog.Warn("memory: access stats update failed", "user_id", userID, "key", key, "error", err)
	}

	s.mu.Lock()
	s.memCache[ck] = memCacheEntry{mem: *m, expires: now.Add(memoryCacheTTL)}
	s.mu.Unlock()
	return m, nil
}

// GetMemoriesByCategory returns up to limit memories in the category, ordered
// by (relevance desc, lastAccessed desc).
func (s *Service) GetMemoriesByCategory(ctx context.Context, userID string, category store.Category, limit int) ([]store.Memory, error) {
	ms, err := s.memories.GetMemoriesByCategory(ctx, userID, category, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: by category %q: %w", category, err)
	}
	return ms, nil
}

// StoreConversation appends one turn, computes its context score, runs
// context extraction, and updates the per-session cache. Extraction failures
// are logged but never fail the write.
func (s *Service) StoreConversation(ctx context.Context, userID, message, response string, intent types.Intent, entities types.Entities, sessionID string) (store.Conversation, error) {
	c := store.Conversation{
		UserID:            userID,
		SessionID:         sessionID,
		UserMessage:       message,
		AssistantResponse: response,
		Intent:            intent,
		Entities:          entities,
		ContextScore:      contextScore(message, intent, entities),
		CreatedAt:         s.now(),
	}

	stored, err := s.memories.StoreConversation(ctx, c)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("memory: store conversation: %w", err)
	}

	if err := s.extractAndStoreContext(ctx, userID, entities); err != nil {
		slog.Warn("memory: context extraction failed", "user_id", userID, "error", err)
	}

	s.appendCachedTurn(stored)
	return stored, nil
}

// contextScore ranks a turn for context assembly: base 1.0, +0.5 for a known
// intent, +0.2 per entity slot, +0.3 for messages over 50 chars, capped 5.0.
func contextScore(message string, intent types.Intent, entities types.Entities) float64 {
	score := 1.0
	if intent.Known() {
		score += 0.5
	}
	score += 0.2 * float64(entities.SlotCount())
	if len(message) > 50 {
		score += 0.3
	}
	if score > 5.0 {
		score = 5.0
	}
	return score
}

// appendCachedTurn adds a stored turn to the session cache when one is live,
// keeping chronological order and the last sessionCacheTurns entries.
func (s *Service) appendCachedTurn(c store.Conversation) {
	ck := cacheKey(c.UserID, c.SessionID)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.convCache[ck]
	if ok && now.After(e.expires) {
		delete(s.convCache, ck)
		ok = false
	}
	if !ok {
		return
	}
	e.turns = append(e.turns, c)
	if len(e.turns) > sessionCacheTurns {
		e.turns = e.turns[len(e.turns)-sessionCacheTurns:]
	}
	s.convCache[ck] = e
}

// GetConversationHistory returns the most recent turns in chronological order
// (oldest first). Results are cached for 30 minutes per (userID, sessionID).
func (s *Service) GetConversationHistory(ctx context.Context, userID, sessionID string, limit int) ([]store.Conversation, error) {
	ck := cacheKey(userID, sessionID)
	now := s.now()

	s.mu.Lock()
	if e, ok := s.convCache[ck]; ok {
		if now.Before(e.expires) {
			turns := tailTurns(e.turns, limit)
			s.mu.Unlock()
			s.metrics.RecordCacheLookup(ctx, "conversation", true)
			return turns, nil
		}
		delete(s.convCache, ck)
	}
	s.mu.Unlock()
	s.metrics.RecordCacheLookup(ctx, "conversation", false)

	turns, err := s.memories.GetConversationHistory(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: conversation history: %w", err)
	}

	cached := turns
	if len(cached) > sessionCacheTurns {
		cached = cached[len(cached)-sessionCacheTurns:]
	}
	s.mu.Lock()
	s.convCache[ck] = convCacheEntry{
		turns:   append([]store.Conversation(nil), cached...),
		expires: now.Add(conversationCacheTTL),
	}
	s.mu.Unlock()
	return turns, nil
}

func tailTurns(turns []store.Conversation, limit int) []store.Conversation {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]store.Conversation(nil), turns...)
}

// GetConversation returns one turn by id, or nil when it does not exist.
func (s *Service) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	c, err := s.memories.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("memory: get conversation %d: %w", id, err)
	}
	return c, nil
}

// Summary returns the top memories per category, fetched concurrently.
func (s *Service) Summary(ctx context.Context, userID string, perCategory int) (map[store.Category][]store.Memory, error) {
	return s.summarize(ctx, userID, perCategory)
}

// FlushCaches drops every cached memory and conversation entry.
func (s *Service) FlushCaches() {
	s.mu.Lock()
	s.memCache = make(map[string]memCacheEntry)
	s.convCache = make(map[string]convCacheEntry)
	s.mu.Unlock()
	slog.Debug("memory: caches flushed")
}

// DeleteMemories removes the user's memories (all of them when category is
// empty) and drops affected cache entries.
func (s *Service) DeleteMemories(ctx context.Context, userID string, category store.Category) (int, error) {
	n, err := s.memories.DeleteUserMemories(ctx, userID, category)
	if err != nil {
		return 0, fmt.Errorf("memory: delete for user: %w", err)
	}
	// Per-key cache entries cannot be matched to a category cheaply; drop
	// everything for correctness.
	s.FlushCaches()
	return n, nil
}

// serializeValue renders a memory value for storage: strings pass through,
// everything else becomes JSON.
func serializeValue(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
