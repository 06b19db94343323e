package memory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mirevald/daybook/pkg/store"
)

const (
	patternEventWindowDays  = 30
	patternConversationSize = 50
)

// stopwords are excluded from language-pattern mining.
var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "would": true, "could": true, "should": true, "about": true,
	"what": true, "when": true, "where": true, "your": true, "just": true,
	"like": true, "them": true, "they": true, "then": true, "than": true,
	"been": true, "were": true, "want": true, "need": true, "please": true,
}

// titleCaseWordRe finds candidate participant names in event text.
var titleCaseWordRe = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// LearnFromPatterns mines the user's recent events and conversations for
// behavioral memories: preferred meeting hours, typical duration, frequent
// participants, and recurring vocabulary. Meant to run off the critical path.
func (s *Service) LearnFromPatterns(ctx context.Context, userID string) error {
	var (
		events []store.CalendarEvent
		turns  []store.Conversation
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		evs, err := s.events.GetUserEvents(egCtx, userID, patternEventWindowDays)
		if err != nil {
			return fmt.Errorf("memory: patterns: recent events: %w", err)
		}
		events = evs
		return nil
	})
	eg.Go(func() error {
		cs, err := s.memories.GetConversationHistory(egCtx, userID, "", patternConversationSize)
		if err != nil {
			return fmt.Errorf("memory: patterns: recent conversations: %w", err)
		}
		turns = cs
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	var errs []error

	if times := preferredTimes(events); len(times) > 0 {
		if err := s.StoreMemory(ctx, userID, "preferred_meeting_times", times, store.CategoryBehavioral, 0.8); err != nil {
			errs = append(errs, err)
		}
	}
	if minutes := typicalDuration(turns); minutes > 0 {
		if err := s.StoreMemory(ctx, userID, "typical_meeting_duration", strconv.Itoa(minutes), store.CategoryBehavioral, 0.7); err != nil {
			errs = append(errs, err)
		}
	}
	if names := frequentParticipants(events); len(names) > 0 {
		if err := s.StoreMemory(ctx, userID, "frequent_meeting_participants", names, store.CategoryBehavioral, 0.6); err != nil {
			errs = append(errs, err)
		}
	}
	if patterns := languagePatterns(turns); len(patterns) > 0 {
		if err := s.StoreMemory(ctx, userID, "language_patterns", patterns, store.CategoryBehavioral, 0.5); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// preferredTimes returns the user's top 3 event start hours as HH:00 strings,
// most frequent first, ties broken by earlier hour.
func preferredTimes(events []store.CalendarEvent) []string {
	counts := make(map[int]int)
	for _, e := range events {
		h, _, ok := strings.Cut(e.Time, ":")
		if !ok {
			continue
		}
		hour, err := strconv.Atoi(h)
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		counts[hour]++
	}

	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > 3 {
		hours = hours[:3]
	}

	times := make([]string, len(hours))
	for i, h := range hours {
		times[i] = fmt.Sprintf("%02d:00", h)
	}
	return times
}

// typicalDuration returns the most common explicit duration (minutes) from
// recent parsed turns, 0 when none was stated. Calendar events do not carry a
// duration, so the parsed entity slots are the source.
func typicalDuration(turns []store.Conversation) int {
	counts := make(map[int]int)
	for _, t := range turns {
		if d := t.Entities.Duration; d > 0 {
			counts[d]++
		}
	}

	best, bestCount := 0, 0
	for d, n := range counts {
		if n > bestCount || (n == bestCount && d < best) {
			best, bestCount = d, n
		}
	}
	return best
}

// frequentParticipants returns the top 5 title-cased names from event titles
// and descriptions, most frequent first.
func frequentParticipants(events []store.CalendarEvent) []string {
	counts := make(map[string]int)
	for _, e := range events {
		for _, w := range titleCaseWordRe.FindAllString(e.Title+" "+e.Description, -1) {
			if stopwords[strings.ToLower(w)] {
				continue
			}
			counts[w]++
		}
	}

	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 5 {
		names = names[:5]
	}
	return names
}

// languagePatterns counts non-stopword tokens of length >= 4 across recent
// user messages and keeps those appearing at least 3 times.
func languagePatterns(turns []store.Conversation) map[string]int {
	counts := make(map[string]int)
	for _, t := range turns {
		for _, w := range strings.Fields(strings.ToLower(t.UserMessage)) {
			w = strings.Trim(w, ".,!?;:'\"()")
			if len(w) < 4 || stopwords[w] {
				continue
			}
			counts[w]++
		}
	}

	patterns := make(map[string]int)
	for w, n := range counts {
		if n >= 3 {
			patterns[w] = n
		}
	}
	return patterns
}
