// Package types defines the shared types used across all Daybook packages.
//
// These types form the lingua franca between the NLP extractor, the assistant
// dispatcher, the memory service, and the realtime audio bridge. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "strings"

// Intent is a coarse classification of a user utterance.
type Intent string

const (
	// IntentCreate adds a new calendar event.
	IntentCreate Intent = "CREATE"

	// IntentModify changes an existing event.
	IntentModify Intent = "MODIFY"

	// IntentDelete removes an existing event.
	IntentDelete Intent = "DELETE"

	// IntentQuery reads the schedule without mutating it.
	IntentQuery Intent = "QUERY"

	// IntentUnknown is the sentinel for utterances no keyword list matched.
	IntentUnknown Intent = "UNKNOWN"
)

// IsValid reports whether the intent is one of the defined values.
func (i Intent) IsValid() bool {
	switch i {
	case IntentCreate, IntentModify, IntentDelete, IntentQuery, IntentUnknown:
		return true
	}
	return false
}

// Known reports whether the intent carries semantic meaning, i.e. is not the
// UNKNOWN sentinel.
func (i Intent) Known() bool {
	return i.IsValid() && i != IntentUnknown
}

// Recurrence describes how often an event repeats.
type Recurrence struct {
	// Type is one of "daily", "weekly", "monthly", "yearly".
	Type string `json:"type"`

	// Interval is the repeat spacing in units of Type (1 = every occurrence).
	Interval int `json:"interval"`
}

// Entities is the slot bag produced by the NLP extractor. Every field is
// optional; the zero value means the slot was not extracted. Field names
// mirror the wire shape consumed by clients.
type Entities struct {
	// Date is an ISO calendar date (YYYY-MM-DD), no time zone.
	Date string `json:"date,omitempty"`

	// Time is a 24-hour wall-clock time (HH:MM).
	Time string `json:"time,omitempty"`

	// EndTime is the end of an explicit time range (HH:MM).
	EndTime string `json:"endTime,omitempty"`

	// Duration is the event length in whole minutes.
	Duration int `json:"duration,omitempty"`

	// Title is the event title after subtractive extraction.
	Title string `json:"title,omitempty"`

	// Participants are human names or email addresses, ordered, unique
	// (first occurrence wins).
	Participants []string `json:"participants,omitempty"`

	// Location is a title-cased place phrase.
	Location string `json:"location,omitempty"`

	// EventType is one of the fixed event taxonomy values
	// (meeting, meal, appointment, fitness, travel, work, social, other).
	EventType string `json:"eventType,omitempty"`

	// Priority is one of "high", "medium", "low".
	Priority string `json:"priority,omitempty"`

	// Recurrence is present for repeating events.
	Recurrence *Recurrence `json:"recurrence,omitempty"`
}

// SlotCount returns the number of distinct slots filled in the bag. It drives
// both NLP confidence and conversation context scoring.
func (e Entities) SlotCount() int {
	n := 0
	if e.Date != "" {
		n++
	}
	if e.Time != "" {
		n++
	}
	if e.EndTime != "" {
		n++
	}
	if e.Duration > 0 {
		n++
	}
	if e.Title != "" {
		n++
	}
	if len(e.Participants) > 0 {
		n++
	}
	if e.Location != "" {
		n++
	}
	if e.EventType != "" {
		n++
	}
	if e.Priority != "" {
		n++
	}
	if e.Recurrence != nil {
		n++
	}
	return n
}

// Action identifies the side effect (or requested clarification) attached to
// an assistant reply. The same codes flow through the text path, the AI
// fallback path, and the audio bridge tool calls.
type Action string

const (
	ActionEventCreated          Action = "EVENT_CREATED"
	ActionShowSchedule          Action = "SHOW_SCHEDULE"
	ActionShowEmptySchedule     Action = "SHOW_EMPTY_SCHEDULE"
	ActionRequestDate           Action = "REQUEST_DATE"
	ActionRequestTime           Action = "REQUEST_TIME"
	ActionRequestEventSelection Action = "REQUEST_EVENT_SELECTION"
	ActionConfirmCreateEvent    Action = "CONFIRM_CREATE_EVENT"
	ActionConfirmDeleteEvent    Action = "CONFIRM_DELETE_EVENT"
	ActionModifyEvent           Action = "MODIFY_EVENT"
	ActionSetReminder           Action = "SET_REMINDER"
	ActionError                 Action = "ERROR"
)

// EventTypeFor classifies a free-text phrase into the fixed event taxonomy by
// whole-word keyword lookup, first match wins. It returns "" when no keyword
// list matches.
func EventTypeFor(text string) string {
	et, _ := EventTypeMatch(text)
	return et
}

// EventTypeMatch classifies like EventTypeFor but additionally returns the
// keyword that selected the taxonomy value, as it appears in the keyword list
// (lowercase). Returns ("", "") when nothing matches.
func EventTypeMatch(text string) (eventType, keyword string) {
	words := strings.Fields(strings.ToLower(text))
	for i := range words {
		words[i] = strings.Trim(words[i], ".,!?;:'\"")
	}
	for _, et := range eventTypeOrder {
		for _, kw := range eventTypeKeywords[et] {
			for _, w := range words {
				if w == kw {
					return et, kw
				}
			}
		}
	}
	return "", ""
}

// eventTypeOrder fixes lookup precedence so classification is deterministic.
var eventTypeOrder = []string{
	"meeting", "meal", "appointment", "fitness", "travel", "work", "social",
}

// eventTypeKeywords maps each taxonomy value to the whole words that select it.
var eventTypeKeywords = map[string][]string{
	"meeting":     {"meeting", "call", "standup", "sync", "interview", "conference", "presentation", "demo"},
	"meal":        {"lunch", "dinner", "breakfast", "brunch", "coffee", "meal", "drinks"},
	"appointment": {"appointment", "dentist", "doctor", "checkup", "haircut", "vet"},
	"fitness":     {"gym", "workout", "run", "yoga", "exercise", "training", "swim"},
	"travel":      {"flight", "trip", "travel", "drive", "commute", "vacation"},
	"work":        {"work", "deadline", "review", "report", "shift", "project"},
	"social":      {"party", "birthday", "hangout", "date", "wedding", "concert", "movie"},
}
