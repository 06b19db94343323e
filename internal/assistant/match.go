package assistant

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/mirevald/daybook/pkg/store"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score for an event whose
	// title phonetically overlaps the query.
	phoneticThreshold = 0.70

	// fuzzyThreshold is the minimum Jaro-Winkler score without phonetic
	// overlap.
	fuzzyThreshold = 0.85

	maxCandidates = 5
)

// eventMatcher ranks calendar events against a spoken or typed title. Double
// Metaphone codes gate candidates cheaply; Jaro-Winkler on the original
// strings ranks them. Read-only after construction.
type eventMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newEventMatcher() *eventMatcher {
	return &eventMatcher{
		phoneticThreshold: phoneticThreshold,
		fuzzyThreshold:    fuzzyThreshold,
	}
}

// rank returns up to maxCandidates events whose titles plausibly match query,
// best first. An exact case-insensitive title match returns just that event.
func (m *eventMatcher) rank(query string, events []store.CalendarEvent) []store.CalendarEvent {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" || len(events) == 0 {
		return nil
	}
	queryCodes := metaphoneCodes(strings.Fields(queryLower))

	type scored struct {
		event store.CalendarEvent
		score float64
	}
	var matched []scored

	for _, e := range events {
		titleLower := strings.ToLower(strings.TrimSpace(e.Title))
		if titleLower == "" {
			continue
		}
		if titleLower == queryLower {
			return []store.CalendarEvent{e}
		}

		score := matchr.JaroWinkler(queryLower, titleLower, false)
		// Cross-token comparison catches one spoken word matching one title
		// word ("standup" vs "daily standup").
		for _, qt := range strings.Fields(queryLower) {
			for _, tt := range strings.Fields(titleLower) {
				if s := matchr.JaroWinkler(qt, tt, false); s > score {
					score = s
				}
			}
		}

		threshold := m.fuzzyThreshold
		if codesOverlap(queryCodes, metaphoneCodes(strings.Fields(titleLower))) {
			threshold = m.phoneticThreshold
		}
		if score >= threshold {
			matched = append(matched, scored{event: e, score: score})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})
	if len(matched) > maxCandidates {
		matched = matched[:maxCandidates]
	}

	out := make([]store.CalendarEvent, len(matched))
	for i, s := range matched {
		out[i] = s.event
	}
	return out
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens,
// excluding empty codes.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
