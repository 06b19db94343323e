// Package nlp implements the rule-based intent and entity extractor.
//
// Parse is a pure function over its input string plus the injected clock:
// no I/O, no retained state between calls. Relative phrases ("tomorrow",
// "in 2 hours") resolve against the clock at parse time, which tests pin
// via WithClock.
//
// Extraction runs in a fixed order: date, time, duration, recurrence,
// priority, participants, location, event type, then intent (which may
// default to CREATE when a date or time was found), and finally the
// subtractive title pass over whatever text the other extractors did not
// consume. A validation pass at the end drops slots that fail their shape
// checks so downstream code never sees a malformed date or time.
package nlp

import (
	"regexp"
	"strings"
	"time"

	"github.com/mirevald/daybook/pkg/types"
)

// Result is the outcome of parsing one utterance.
type Result struct {
	// Intent is the classified intent, IntentUnknown when nothing matched.
	Intent types.Intent `json:"intent"`

	// Entities holds every slot the extractors filled.
	Entities types.Entities `json:"entities"`

	// Confidence is in [0.5, 1.0]. The dispatcher takes the fast path only
	// when it is strictly greater than 0.8.
	Confidence float64 `json:"confidence"`

	// RawInput is the utterance as received, untrimmed.
	RawInput string `json:"rawInput"`
}

// Extractor parses utterances. Safe for concurrent use; all state is the
// injected clock, which must itself be safe to call concurrently.
type Extractor struct {
	now func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock replaces the wall clock used to resolve relative dates and times.
// Tests use this to pin "today".
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an Extractor with the real clock unless overridden.
func New(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse extracts intent, entities, and a confidence score from one utterance.
// It never fails: unparseable input yields IntentUnknown with confidence 0.5.
func (e *Extractor) Parse(utterance string) Result {
	now := e.now()
	text := strings.TrimSpace(utterance)

	var ents types.Entities
	ents.Date = extractDate(text, now)
	ents.Time, ents.EndTime = extractTime(text, now)
	ents.Duration = extractDuration(text)
	ents.Recurrence = extractRecurrence(text)
	ents.Priority = extractPriority(text)
	ents.Participants = extractParticipants(text)
	ents.Location = extractLocation(text)
	ents.EventType = types.EventTypeFor(text)

	intent := classifyIntent(text)
	if intent == types.IntentUnknown && (ents.Date != "" || ents.Time != "") {
		intent = types.IntentCreate
	}

	ents.Title = extractTitle(text)

	validate(&ents)

	return Result{
		Intent:     intent,
		Entities:   ents,
		Confidence: confidence(intent, ents),
		RawInput:   utterance,
	}
}

// confidence scores how certain the parse is. Base 0.5; +0.2 for a known
// intent; +0.1 per filled slot; +0.1 each for date, time, and a title that is
// not the generic fallback. Capped at 1.0.
func confidence(intent types.Intent, ents types.Entities) float64 {
	score := 0.5
	if intent.Known() {
		score += 0.2
	}
	score += 0.1 * float64(ents.SlotCount())
	if ents.Date != "" {
		score += 0.1
	}
	if ents.Time != "" {
		score += 0.1
	}
	if ents.Title != "" && ents.Title != fallbackTitle {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

var (
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	wallClockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// validate drops slots that fail their shape checks. Title is guaranteed
// non-empty by extractTitle's fallback, so only the formatted slots need
// re-checking here.
func validate(ents *types.Entities) {
	if ents.Date != "" {
		if !isoDateRe.MatchString(ents.Date) {
			ents.Date = ""
		} else if _, err := time.Parse("2006-01-02", ents.Date); err != nil {
			ents.Date = ""
		}
	}
	if ents.Time != "" && !wallClockRe.MatchString(ents.Time) {
		ents.Time = ""
	}
	if ents.EndTime != "" && !wallClockRe.MatchString(ents.EndTime) {
		ents.EndTime = ""
	}
	if ents.Duration < 0 {
		ents.Duration = 0
	}
}
