package store

import (
	"time"

	"github.com/mirevald/daybook/pkg/types"
)

// CalendarEvent is one entry on a user's calendar.
//
// Date is an ISO calendar date (YYYY-MM-DD) with no time zone; Time is a
// 24-hour wall clock (HH:MM) and is empty exactly when AllDay is true.
type CalendarEvent struct {
	// ID is the opaque unique identifier, assigned on creation.
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"userId"`

	// Title is the display title. Never empty for a stored event.
	Title string `json:"title"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// Date is the ISO calendar date (YYYY-MM-DD).
	Date string `json:"date"`

	// Time is the start wall-clock time (HH:MM, 24h). Empty iff AllDay.
	Time string `json:"time,omitempty"`

	// Type is one of meeting, meal, appointment, fitness, travel, work,
	// social, other.
	Type string `json:"type"`

	// Location is an optional place string.
	Location string `json:"location,omitempty"`

	// AllDay marks events without a start time.
	AllDay bool `json:"allDay"`

	// Recurring marks repeating events; RecurringType is one of daily,
	// weekly, monthly, yearly when set.
	Recurring     bool   `json:"recurring,omitempty"`
	RecurringType string `json:"recurringType,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EventPatch is a partial update for a calendar event. Nil fields are left
// unchanged.
type EventPatch struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Date          *string `json:"date,omitempty"`
	Time          *string `json:"time,omitempty"`
	Type          *string `json:"type,omitempty"`
	Location      *string `json:"location,omitempty"`
	AllDay        *bool   `json:"allDay,omitempty"`
	Recurring     *bool   `json:"recurring,omitempty"`
	RecurringType *string `json:"recurringType,omitempty"`
}

// Category partitions memories for targeted retrieval and cleanup.
type Category string

const (
	CategoryPersonal      Category = "personal"
	CategoryBehavioral    Category = "behavioral"
	CategoryContextual    Category = "contextual"
	CategoryPreferences   Category = "preferences"
	CategoryRelationships Category = "relationships"
)

// IsValid reports whether the category is one of the defined values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPersonal, CategoryBehavioral, CategoryContextual,
		CategoryPreferences, CategoryRelationships:
		return true
	}
	return false
}

// Categories returns the fixed category set in presentation order.
func Categories() []Category {
	return []Category{
		CategoryPersonal,
		CategoryBehavioral,
		CategoryContextual,
		CategoryPreferences,
		CategoryRelationships,
	}
}

// Memory is a durable per-user key/value fact. Identity is (UserID, Key);
// writes are upserts that bump AccessCount and advance LastAccessed.
type Memory struct {
	// UserID is the owning user.
	UserID string `json:"userId"`

	// Key is the fact name, unique per user (e.g. "preferred_meeting_times").
	Key string `json:"key"`

	// Value is the fact payload. Structured values are stored JSON-encoded.
	Value string `json:"value"`

	// Category partitions the memory space.
	Category Category `json:"category"`

	// RelevanceScore is a positive priority, not bounded to a fixed range.
	// Higher scores are preferred for recall and survive cleanup longer.
	RelevanceScore float64 `json:"relevanceScore"`

	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	AccessCount  int       `json:"accessCount"`
}

// Conversation is the append-only record of one user turn and the
// assistant's reply.
type Conversation struct {
	// ID is assigned by the store on insert.
	ID int64 `json:"id"`

	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`

	UserMessage       string `json:"userMessage"`
	AssistantResponse string `json:"assistantResponse"`

	// Intent and Entities record what the extractor (or the AI fallback)
	// decided for this turn.
	Intent   types.Intent   `json:"intent"`
	Entities types.Entities `json:"entities"`

	// ContextScore ranks the turn for context assembly (1.0 to 5.0).
	ContextScore float64 `json:"contextScore"`

	CreatedAt time.Time `json:"createdAt"`
}

// FeedbackType is the user's judgement of one assistant reply.
type FeedbackType string

const (
	FeedbackPositive   FeedbackType = "positive"
	FeedbackNegative   FeedbackType = "negative"
	FeedbackCorrection FeedbackType = "correction"
)

// IsValid reports whether the feedback type is one of the defined values.
func (t FeedbackType) IsValid() bool {
	switch t {
	case FeedbackPositive, FeedbackNegative, FeedbackCorrection:
		return true
	}
	return false
}

// Feedback is a per-message user judgement. Corrections feed the feedback
// ingestor, which derives memories with elevated relevance.
type Feedback struct {
	ID             int64        `json:"id"`
	UserID         string       `json:"userId"`
	ConversationID int64        `json:"conversationId"`
	FeedbackType   FeedbackType `json:"feedbackType"`
	FeedbackText   string       `json:"feedbackText,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}
