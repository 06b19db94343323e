package memory_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"
)

func TestLearnFromPatterns(t *testing.T) {
	t.Parallel()
	svc, ms, cs, _ := newService(t)
	ctx := context.Background()

	cs.Events = []store.CalendarEvent{
		{UserID: "u1", Date: "2024-03-04", Time: "09:00", Title: "standup with Alice"},
		{UserID: "u1", Date: "2024-03-05", Time: "09:15", Title: "standup with Alice"},
		{UserID: "u1", Date: "2024-03-06", Time: "09:30", Title: "standup with Alice and Bob"},
		{UserID: "u1", Date: "2024-03-06", Time: "14:00", Title: "review with Bob"},
		{UserID: "u1", Date: "2024-03-07", Time: "14:00", Title: "planning"},
		{UserID: "u1", Date: "2024-03-08", Time: "16:00", Title: "retro"},
	}
	ms.SeedConversations(
		store.Conversation{UserID: "u1", SessionID: "s1", UserMessage: "schedule standup tomorrow for 30 minutes", Entities: types.Entities{Duration: 30}},
		store.Conversation{UserID: "u1", SessionID: "s1", UserMessage: "book standup again for 30 minutes", Entities: types.Entities{Duration: 30}},
		store.Conversation{UserID: "u1", SessionID: "s2", UserMessage: "plan a standup retro for 1 hour", Entities: types.Entities{Duration: 60}},
	)

	if err := svc.LearnFromPatterns(ctx, "u1"); err != nil {
		t.Fatalf("LearnFromPatterns: %v", err)
	}
	snap := ms.MemorySnapshot("u1")

	var times []string
	if err := json.Unmarshal([]byte(snap["preferred_meeting_times"].Value), &times); err != nil {
		t.Fatalf("preferred_meeting_times not JSON: %v", err)
	}
	if len(times) != 3 || times[0] != "09:00" || times[1] != "14:00" || times[2] != "16:00" {
		t.Errorf("preferred_meeting_times = %v, want [09:00 14:00 16:00]", times)
	}
	if mem := snap["preferred_meeting_times"]; mem.Category != store.CategoryBehavioral || mem.RelevanceScore != 0.8 {
		t.Errorf("preferred_meeting_times stored as %+v, want behavioral at 0.8", mem)
	}

	if got := snap["typical_meeting_duration"].Value; got != "30" {
		t.Errorf("typical_meeting_duration = %q, want %q", got, "30")
	}

	var names []string
	if err := json.Unmarshal([]byte(snap["frequent_meeting_participants"].Value), &names); err != nil {
		t.Fatalf("frequent_meeting_participants not JSON: %v", err)
	}
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Errorf("frequent_meeting_participants = %v, want [Alice Bob]", names)
	}

	var patterns map[string]int
	if err := json.Unmarshal([]byte(snap["language_patterns"].Value), &patterns); err != nil {
		t.Fatalf("language_patterns not JSON: %v", err)
	}
	if patterns["standup"] != 3 {
		t.Errorf(`language_patterns["standup"] = %d, want 3`, patterns["standup"])
	}
	if _, ok := patterns["for"]; ok {
		t.Error("language_patterns kept a short token")
	}
	if _, ok := patterns["minutes"]; ok {
		t.Error("language_patterns kept a token below the repeat threshold")
	}
}

func TestLearnFromPatternsWithNoHistoryStoresNothing(t *testing.T) {
	t.Parallel()
	svc, ms, _, _ := newService(t)

	if err := svc.LearnFromPatterns(context.Background(), "u1"); err != nil {
		t.Fatalf("LearnFromPatterns: %v", err)
	}
	if got := ms.CallCount("UpsertMemory"); got != 0 {
		t.Errorf("UpsertMemory calls = %d, want 0", got)
	}
}

func TestSummaryGroupsByCategory(t *testing.T) {
	t.Parallel()
	svc, ms, _, _ := newService(t)
	ms.Seed(
		store.Memory{UserID: "u1", Key: "contact:alice", Value: "Alice", Category: store.CategoryRelationships, RelevanceScore: 0.6},
		store.Memory{UserID: "u1", Key: "contact:bob", Value: "Bob", Category: store.CategoryRelationships, RelevanceScore: 0.9},
		store.Memory{UserID: "u1", Key: "location:office", Value: "Office", Category: store.CategoryPreferences, RelevanceScore: 0.5},
	)

	summary, err := svc.Summary(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summary) != len(store.Categories()) {
		t.Fatalf("summary has %d categories, want %d", len(summary), len(store.Categories()))
	}

	rel := summary[store.CategoryRelationships]
	if len(rel) != 1 || rel[0].Key != "contact:bob" {
		t.Errorf("relationships top entry = %+v, want contact:bob (highest relevance)", rel)
	}
	if got := summary[store.CategoryPreferences]; len(got) != 1 || got[0].Key != "location:office" {
		t.Errorf("preferences = %+v, want location:office", got)
	}
	if got := summary[store.CategoryPersonal]; len(got) != 0 {
		t.Errorf("personal = %+v, want empty", got)
	}
}
