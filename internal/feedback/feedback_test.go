package feedback_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mirevald/daybook/internal/feedback"
	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/store/mock"
)

var testTime = time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testTime }

func newIngestor(t *testing.T) (*feedback.Ingestor, *mock.MemoryStore) {
	t.Helper()
	ms := mock.NewMemoryStore()
	ms.Now = fixedClock
	svc := memory.New(ms, mock.NewCalendarStore(), memory.WithClock(fixedClock))
	return feedback.New(ms, svc, feedback.WithClock(fixedClock)), ms
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)
	ctx := context.Background()

	err := ing.Ingest(ctx, store.Feedback{UserID: "u1", ConversationID: 1, FeedbackType: "meh"})
	if !errors.Is(err, feedback.ErrInvalidType) {
		t.Errorf("invalid type error = %v, want ErrInvalidType", err)
	}
	err = ing.Ingest(ctx, store.Feedback{ConversationID: 1, FeedbackType: store.FeedbackPositive})
	if !errors.Is(err, feedback.ErrMissingUser) {
		t.Errorf("missing user error = %v, want ErrMissingUser", err)
	}
	if got := ms.CallCount("StoreFeedback"); got != 0 {
		t.Errorf("StoreFeedback calls = %d, want 0 (validation precedes writes)", got)
	}
}

func TestIngestMaintainsStatsAndRecentWindow(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)
	ctx := context.Background()

	for _, ft := range []store.FeedbackType{store.FeedbackPositive, store.FeedbackPositive, store.FeedbackNegative} {
		if err := ing.Ingest(ctx, store.Feedback{UserID: "u1", ConversationID: 1, FeedbackType: ft}); err != nil {
			t.Fatalf("Ingest %s: %v", ft, err)
		}
	}

	stats, err := ing.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	want := feedback.Stats{Positive: 2, Negative: 1, Total: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if got := ms.CallCount("StoreFeedback"); got != 3 {
		t.Errorf("StoreFeedback calls = %d, want 3", got)
	}

	snap := ms.MemorySnapshot("u1")
	if mem := snap["feedback_stats"]; mem.Category != store.CategoryBehavioral || mem.RelevanceScore != 0.5 {
		t.Errorf("feedback_stats stored as %+v, want behavioral at 0.5", mem)
	}

	recentMem, ok := snap["recent_feedback"]
	if !ok {
		t.Fatal("recent_feedback not stored")
	}
	if recentMem.RelevanceScore != 0.7 {
		t.Errorf("recent_feedback relevance = %v, want 0.7", recentMem.RelevanceScore)
	}
	var recent []feedback.Entry
	if err := json.Unmarshal([]byte(recentMem.Value), &recent); err != nil {
		t.Fatalf("recent_feedback not JSON: %v", err)
	}
	if len(recent) != 3 || recent[2].FeedbackType != store.FeedbackNegative {
		t.Errorf("recent window = %+v, want three entries ending with the negative one", recent)
	}
}

func TestRecentWindowKeepsLastTwenty(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)
	ctx := context.Background()

	for n := 1; n <= 25; n++ {
		fb := store.Feedback{
			UserID:         "u1",
			ConversationID: int64(n),
			FeedbackType:   store.FeedbackPositive,
			FeedbackText:   fmt.Sprintf("turn %d", n),
		}
		if err := ing.Ingest(ctx, fb); err != nil {
			t.Fatalf("Ingest %d: %v", n, err)
		}
	}

	var recent []feedback.Entry
	if err := json.Unmarshal([]byte(ms.MemorySnapshot("u1")["recent_feedback"].Value), &recent); err != nil {
		t.Fatalf("recent_feedback not JSON: %v", err)
	}
	if len(recent) != 20 {
		t.Fatalf("recent window length = %d, want 20", len(recent))
	}
	if recent[0].ConversationID != 6 || recent[19].ConversationID != 25 {
		t.Errorf("window spans %d..%d, want 6..25", recent[0].ConversationID, recent[19].ConversationID)
	}
}

func TestCorrectionDerivesTimeFix(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)
	ctx := context.Background()
	ms.SeedConversations(store.Conversation{
		UserID: "u1", SessionID: "s1",
		UserMessage: "Schedule standup tomorrow at 2pm",
	})

	err := ing.Ingest(ctx, store.Feedback{
		UserID:         "u1",
		ConversationID: 1,
		FeedbackType:   store.FeedbackCorrection,
		FeedbackText:   "it should be 2:30 PM",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	snap := ms.MemorySnapshot("u1")
	fix, ok := snap["time_preference_correction"]
	if !ok {
		t.Fatal("time_preference_correction not stored")
	}
	if fix.Value != "2:30 PM" {
		t.Errorf("time fix = %q, want %q", fix.Value, "2:30 PM")
	}
	if fix.Category != store.CategoryBehavioral || fix.RelevanceScore != 0.9 {
		t.Errorf("time fix stored as %+v, want behavioral at 0.9", fix)
	}

	patternKey := fmt.Sprintf("correction_pattern_%d", testTime.Unix())
	pattern, ok := snap[patternKey]
	if !ok {
		t.Fatalf("correction pattern %q not stored", patternKey)
	}
	var pair struct {
		Original   string `json:"original"`
		Correction string `json:"correction"`
	}
	if err := json.Unmarshal([]byte(pattern.Value), &pair); err != nil {
		t.Fatalf("correction pattern not JSON: %v", err)
	}
	if pair.Original != "Schedule standup tomorrow at 2pm" || pair.Correction != "it should be 2:30 PM" {
		t.Errorf("pair = %+v, want original/correction preserved", pair)
	}

	stats, err := ing.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if stats.Correction != 1 || stats.Total != 1 {
		t.Errorf("stats = %+v, want one correction", stats)
	}
}

func TestCorrectionDerivesDayAndParticipants(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)
	ctx := context.Background()
	ms.SeedConversations(store.Conversation{UserID: "u1", UserMessage: "move my review"})

	err := ing.Ingest(ctx, store.Feedback{
		UserID:         "u1",
		ConversationID: 1,
		FeedbackType:   store.FeedbackCorrection,
		FeedbackText:   "move it to Friday with Alice and Bob",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	snap := ms.MemorySnapshot("u1")
	if got := snap["day_preference_correction"].Value; got != "friday" {
		t.Errorf("day fix = %q, want %q", got, "friday")
	}
	var names []string
	if err := json.Unmarshal([]byte(snap["participant_correction"].Value), &names); err != nil {
		t.Fatalf("participant_correction not JSON: %v", err)
	}
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Errorf("participant fix = %v, want [Alice Bob] (weekday excluded)", names)
	}
}

func TestCorrectionDerivesTitleFix(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)
	ms.SeedConversations(store.Conversation{UserID: "u1", UserMessage: "create a meeting"})

	err := ing.Ingest(context.Background(), store.Feedback{
		UserID:         "u1",
		ConversationID: 1,
		FeedbackType:   store.FeedbackCorrection,
		FeedbackText:   "it should be titled quarterly planning",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got := ms.MemorySnapshot("u1")["title_correction"].Value; got != "quarterly planning" {
		t.Errorf("title fix = %q, want %q", got, "quarterly planning")
	}
}

func TestCorrectionWithoutOriginalStillRecordsPattern(t *testing.T) {
	t.Parallel()
	ing, ms := newIngestor(t)

	err := ing.Ingest(context.Background(), store.Feedback{
		UserID:         "u1",
		ConversationID: 404,
		FeedbackType:   store.FeedbackCorrection,
		FeedbackText:   "that was wrong",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	patternKey := fmt.Sprintf("correction_pattern_%d", testTime.Unix())
	pattern, ok := ms.MemorySnapshot("u1")[patternKey]
	if !ok {
		t.Fatalf("correction pattern %q not stored", patternKey)
	}
	var pair struct {
		Original   string `json:"original"`
		Correction string `json:"correction"`
	}
	if err := json.Unmarshal([]byte(pattern.Value), &pair); err != nil {
		t.Fatalf("correction pattern not JSON: %v", err)
	}
	if pair.Original != "" || pair.Correction != "that was wrong" {
		t.Errorf("pair = %+v, want empty original with correction text", pair)
	}
}
