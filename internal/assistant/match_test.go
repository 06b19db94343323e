package assistant

import (
	"testing"

	"github.com/mirevald/daybook/pkg/store"
)

func TestEventMatcherRanking(t *testing.T) {
	t.Parallel()
	m := newEventMatcher()
	events := []store.CalendarEvent{
		{ID: "1", Title: "Standup"},
		{ID: "2", Title: "Dentist appointment"},
		{ID: "3", Title: "Lunch with Alice"},
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{"exact match short-circuits", "standup", []string{"1"}},
		{"phonetic near miss", "standap", []string{"1"}},
		{"word within multi-word title", "dentist", []string{"2"}},
		{"unrelated query", "quarterly budget", nil},
		{"empty query", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := m.rank(tt.query, events)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("rank(%q) returned %d candidates, want %d", tt.query, len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("rank(%q)[%d] = %s, want %s", tt.query, i, got[i].ID, id)
				}
			}
		})
	}
}

func TestEventMatcherCapsCandidates(t *testing.T) {
	t.Parallel()
	m := newEventMatcher()
	var events []store.CalendarEvent
	for i := 0; i < 8; i++ {
		events = append(events, store.CalendarEvent{ID: string(rune('a' + i)), Title: "Standup sync"})
	}

	if got := m.rank("standup", events); len(got) != maxCandidates {
		t.Errorf("candidates = %d, want capped at %d", len(got), maxCandidates)
	}
}
