// Package feedback turns per-message user judgements into durable memory
// updates. Positive and negative votes only move the rolling stats;
// corrections additionally mine the correction text for concrete fixes (a
// time, a weekday, a title, participants) and store each as a high-relevance
// behavioral memory so later turns can be steered by them.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/pkg/store"
)

const (
	statsKey  = "feedback_stats"
	recentKey = "recent_feedback"

	// recentLimit bounds the rolling recent_feedback window.
	recentLimit = 20

	correctionRelevance = 0.9
	recentRelevance     = 0.7
	statsRelevance      = 0.5
)

var (
	// ErrInvalidType is returned for a feedback type outside
	// positive/negative/correction.
	ErrInvalidType = errors.New("feedback: invalid feedback type")

	// ErrMissingUser is returned when the feedback carries no user id.
	ErrMissingUser = errors.New("feedback: user id required")
)

// Stats is the rolling per-user feedback tally kept under feedback_stats.
type Stats struct {
	Positive   int `json:"positive"`
	Negative   int `json:"negative"`
	Correction int `json:"correction"`
	Total      int `json:"total"`
}

// Entry is one element of the rolling recent_feedback window.
type Entry struct {
	ConversationID int64              `json:"conversationId"`
	FeedbackType   store.FeedbackType `json:"feedbackType"`
	FeedbackText   string             `json:"feedbackText,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// correctionPair is the raw payload stored under correction_pattern_<ts>.
type correctionPair struct {
	Original   string `json:"original"`
	Correction string `json:"correction"`
}

// Ingestor persists feedback rows and folds them into the user's memories.
type Ingestor struct {
	feedback store.MemoryStore
	memories *memory.Service
	now      func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock replaces the wall clock. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		i.now = now
	}
}

// New creates an ingestor. Feedback rows go to the store directly; memory
// updates go through the memory service so its caches stay coherent.
func New(feedback store.MemoryStore, memories *memory.Service, opts ...Option) *Ingestor {
	i := &Ingestor{
		feedback: feedback,
		memories: memories,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest validates and persists one feedback record, updates the rolling
// stats and recent window, and on a correction derives memory fixes from the
// correction text. The feedback row is the authoritative write; memory
// updates are reported but never asked for twice.
func (i *Ingestor) Ingest(ctx context.Context, fb store.Feedback) error {
	if fb.UserID == "" {
		return ErrMissingUser
	}
	if !fb.FeedbackType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, fb.FeedbackType)
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = i.now()
	}

	if err := i.feedback.StoreFeedback(ctx, fb); err != nil {
		return fmt.Errorf("feedback: store: %w", err)
	}

	var errs []error
	if err := i.updateStats(ctx, fb); err != nil {
		errs = append(errs, err)
	}
	if err := i.updateRecent(ctx, fb); err != nil {
		errs = append(errs, err)
	}
	if fb.FeedbackType == store.FeedbackCorrection {
		if err := i.ingestCorrection(ctx, fb); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UserStats returns the user's rolling tally; a user with no feedback yet
// gets the zero value.
func (i *Ingestor) UserStats(ctx context.Context, userID string) (Stats, error) {
	var stats Stats
	m, err := i.memories.GetMemory(ctx, userID, statsKey)
	if err != nil {
		return Stats{}, fmt.Errorf("feedback: read stats: %w", err)
	}
	if m == nil {
		return stats, nil
	}
	if err := json.Unmarshal([]byte(m.Value), &stats); err != nil {
		return Stats{}, fmt.Errorf("feedback: decode stats: %w", err)
	}
	return stats, nil
}

func (i *Ingestor) updateStats(ctx context.Context, fb store.Feedback) error {
	stats, err := i.UserStats(ctx, fb.UserID)
	if err != nil {
		// A corrupt tally must not block feedback; start over.
		slog.Warn("feedback: resetting unreadable stats", "user_id", fb.UserID, "error", err)
		stats = Stats{}
	}

	switch fb.FeedbackType {
	case store.FeedbackPositive:
		stats.Positive++
	case store.FeedbackNegative:
		stats.Negative++
	case store.FeedbackCorrection:
		stats.Correction++
	}
	stats.Total++

	return i.memories.StoreMemory(ctx, fb.UserID, statsKey, stats, store.CategoryBehavioral, statsRelevance)
}

func (i *Ingestor) updateRecent(ctx context.Context, fb store.Feedback) error {
	var recent []Entry
	if m, err := i.memories.GetMemory(ctx, fb.UserID, recentKey); err == nil && m != nil {
		if uerr := json.Unmarshal([]byte(m.Value), &recent); uerr != nil {
			slog.Warn("feedback: resetting unreadable recent window", "user_id", fb.UserID, "error", uerr)
			recent = nil
		}
	}

	recent = append(recent, Entry{
		ConversationID: fb.ConversationID,
		FeedbackType:   fb.FeedbackType,
		FeedbackText:   fb.FeedbackText,
		CreatedAt:      fb.CreatedAt,
	})
	if len(recent) > recentLimit {
		recent = recent[len(recent)-recentLimit:]
	}

	return i.memories.StoreMemory(ctx, fb.UserID, recentKey, recent, store.CategoryBehavioral, recentRelevance)
}

// ─────────────────────────────────────────────────────────────────────────────
// Correction mining
// ─────────────────────────────────────────────────────────────────────────────

var (
	// timeTokenRe finds a corrected clock time: "2:30 PM", "14:00", "3pm".
	timeTokenRe = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(?:am|pm)?\b|\b\d{1,2}\s*(?:am|pm)\b`)

	// weekdayRe finds a corrected day of week.
	weekdayRe = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	// titleMarkerRe captures the corrected title after titled/called/named.
	titleMarkerRe = regexp.MustCompile(`(?i)\b(?:titled|called|named)\s+(.+)`)

	// nameTokenRe finds capitalized words that may be participant names.
	nameTokenRe = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
)

// nonNames are capitalized tokens that never identify a participant.
var nonNames = map[string]bool{
	"it": true, "its": true, "the": true, "this": true, "that": true,
	"please": true, "should": true, "actually": true, "change": true,
	"make": true, "not": true, "was": true, "monday": true, "tuesday": true,
	"wednesday": true, "thursday": true, "friday": true, "saturday": true,
	"sunday": true, "january": true, "february": true, "march": true,
	"april": true, "may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// ingestCorrection derives concrete fixes from the correction text and
// records the raw original/correction pair. The pair entry is written even
// when no candidate matched, so unmineable corrections are still auditable.
func (i *Ingestor) ingestCorrection(ctx context.Context, fb store.Feedback) error {
	original := ""
	conv, err := i.memories.GetConversation(ctx, fb.ConversationID)
	if err != nil {
		slog.Warn("feedback: original conversation lookup failed",
			"user_id", fb.UserID, "conversation_id", fb.ConversationID, "error", err)
	} else if conv != nil {
		original = conv.UserMessage
	}

	var errs []error
	storeFix := func(key string, value any) {
		if serr := i.memories.StoreMemory(ctx, fb.UserID, key, value, store.CategoryBehavioral, correctionRelevance); serr != nil {
			errs = append(errs, serr)
		}
	}

	if t := timeTokenRe.FindString(fb.FeedbackText); t != "" {
		storeFix("time_preference_correction", strings.TrimSpace(t))
	}
	if d := weekdayRe.FindString(fb.FeedbackText); d != "" {
		storeFix("day_preference_correction", strings.ToLower(d))
	}
	if m := titleMarkerRe.FindStringSubmatch(fb.FeedbackText); m != nil {
		storeFix("title_correction", strings.Trim(strings.TrimSpace(m[1]), `"'.`))
	}
	if names := participantNames(fb.FeedbackText); len(names) > 0 {
		storeFix("participant_correction", names)
	}

	key := fmt.Sprintf("correction_pattern_%d", fb.CreatedAt.Unix())
	storeFix(key, correctionPair{Original: original, Correction: fb.FeedbackText})

	return errors.Join(errs...)
}

// participantNames returns capitalized words in the correction text that are
// plausibly names, deduplicated in order of first appearance.
func participantNames(text string) []string {
	var (
		names []string
		seen  = map[string]bool{}
	)
	for _, w := range nameTokenRe.FindAllString(text, -1) {
		lower := strings.ToLower(w)
		if nonNames[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		names = append(names, w)
	}
	return names
}
