package assistant_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/store/mock"
	"github.com/mirevald/daybook/pkg/types"
)

// Monday, so "tomorrow" is Tuesday 2024-03-12 and "next friday" is 2024-03-15.
var testTime = time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testTime }

// stubResponder is a hand mock for the conversational fallback.
type stubResponder struct {
	result *assistant.ResponderResult
	err    error

	calls []assistant.ResponderRequest
}

func (r *stubResponder) Respond(_ context.Context, req assistant.ResponderRequest) (*assistant.ResponderResult, error) {
	r.calls = append(r.calls, req)
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func newDispatcher(t *testing.T, opts ...assistant.Option) (*assistant.Dispatcher, *mock.CalendarStore, *mock.MemoryStore) {
	t.Helper()
	ms := mock.NewMemoryStore()
	ms.Now = fixedClock
	cs := mock.NewCalendarStore()
	mem := memory.New(ms, cs, memory.WithClock(fixedClock))
	opts = append([]assistant.Option{assistant.WithClock(fixedClock)}, opts...)
	return assistant.New(cs, mem, opts...), cs, ms
}

// waitFor polls until cond holds; the conversation log is submitted off the
// reply path, so tests wait for it instead of assuming it is synchronous.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProcessCreateWithFullSlots(t *testing.T) {
	t.Parallel()
	d, cs, ms := newDispatcher(t)

	reply, err := d.Process(context.Background(), "u1", "Schedule lunch with Alice tomorrow at 1pm", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if reply.Source != assistant.SourceNLP {
		t.Errorf("Source = %q, want %q", reply.Source, assistant.SourceNLP)
	}
	if reply.Intent != types.IntentCreate {
		t.Errorf("Intent = %q, want CREATE", reply.Intent)
	}
	if reply.Confidence < 0.9 {
		t.Errorf("Confidence = %v, want >= 0.9", reply.Confidence)
	}
	if reply.Action != types.ActionEventCreated {
		t.Errorf("Action = %q, want EVENT_CREATED", reply.Action)
	}
	wantPrefix := `Perfect! I've scheduled "Lunch" for Tuesday, March 12 at 1:00 PM`
	if !strings.HasPrefix(reply.Response, wantPrefix) {
		t.Errorf("Response = %q, want prefix %q", reply.Response, wantPrefix)
	}

	if len(cs.Events) != 1 {
		t.Fatalf("stored events = %d, want 1", len(cs.Events))
	}
	event := cs.Events[0]
	if event.Date != "2024-03-12" || event.Time != "13:00" {
		t.Errorf("event scheduled at %s %s, want 2024-03-12 13:00", event.Date, event.Time)
	}
	if event.Type != "meal" {
		t.Errorf("event type = %q, want meal", event.Type)
	}
	if event.AllDay {
		t.Error("event marked all-day, want timed")
	}
	if event.Description != "With Alice" {
		t.Errorf("description = %q, want %q", event.Description, "With Alice")
	}

	waitFor(t, func() bool { return ms.CallCount("StoreConversation") == 1 })
}

func TestProcessCreateMissingTimeAsksWithoutWriting(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)

	reply, err := d.Process(context.Background(), "u1", "Add dentist appointment tomorrow", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Action != types.ActionRequestTime {
		t.Errorf("Action = %q, want REQUEST_TIME", reply.Action)
	}
	if reply.Response != "What time should the event start?" {
		t.Errorf("Response = %q", reply.Response)
	}
	if got := cs.CallCount("CreateEvent"); got != 0 {
		t.Errorf("CreateEvent calls = %d, want 0", got)
	}
}

func TestProcessCreateMissingDateAsksFirst(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)

	reply, err := d.Process(context.Background(), "u1", "Schedule a team meeting at 3pm", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Action != types.ActionRequestDate {
		t.Errorf("Action = %q, want REQUEST_DATE", reply.Action)
	}
	if got := cs.CallCount("CreateEvent"); got != 0 {
		t.Errorf("CreateEvent calls = %d, want 0", got)
	}
}

func TestProcessQueryEmptyDay(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)

	reply, err := d.Process(context.Background(), "u1", "What's on my calendar next Friday?", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Action != types.ActionShowEmptySchedule {
		t.Errorf("Action = %q, want SHOW_EMPTY_SCHEDULE", reply.Action)
	}
	if !strings.Contains(reply.Response, "no events scheduled") {
		t.Errorf("Response = %q, want mention of an empty schedule", reply.Response)
	}

	calls := cs.Calls()
	if len(calls) != 1 || calls[0].Method != "GetEventsByDateRange" {
		t.Fatalf("calendar calls = %+v, want one range read", calls)
	}
	if calls[0].Args[1] != "2024-03-15" || calls[0].Args[2] != "2024-03-15" {
		t.Errorf("range = %v..%v, want single day 2024-03-15", calls[0].Args[1], calls[0].Args[2])
	}
}

func TestProcessQueryListsEventsInOrder(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)
	cs.Events = []store.CalendarEvent{
		{UserID: "u1", Date: "2024-03-11", Time: "14:00", Title: "Review", Location: "Room 2"},
		{UserID: "u1", Date: "2024-03-11", Time: "09:30", Title: "Standup"},
	}

	reply, err := d.Process(context.Background(), "u1", "List my events for today", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Action != types.ActionShowSchedule {
		t.Errorf("Action = %q, want SHOW_SCHEDULE", reply.Action)
	}
	standup := strings.Index(reply.Response, "9:30 AM — Standup")
	review := strings.Index(reply.Response, "2:00 PM — Review (Room 2)")
	if standup == -1 || review == -1 || standup > review {
		t.Errorf("Response = %q, want standup listed before review", reply.Response)
	}
}

func TestProcessLowConfidenceRoutesToResponder(t *testing.T) {
	t.Parallel()
	responder := &stubResponder{result: &assistant.ResponderResult{
		Response: "Happy to help — what would you like to schedule?",
		Intent:   types.IntentUnknown,
	}}
	d, _, ms := newDispatcher(t, assistant.WithResponder(responder))

	reply, err := d.Process(context.Background(), "u1", "uhh can you like, you know", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Source != assistant.SourceAI {
		t.Errorf("Source = %q, want %q", reply.Source, assistant.SourceAI)
	}
	if len(responder.calls) != 1 {
		t.Fatalf("responder calls = %d, want 1", len(responder.calls))
	}
	if responder.calls[0].Message != "uhh can you like, you know" {
		t.Errorf("responder got message %q", responder.calls[0].Message)
	}

	// The turn is still logged with the chosen intent.
	waitFor(t, func() bool { return ms.CallCount("StoreConversation") == 1 })
}

func TestProcessAtConfidenceThresholdFallsBack(t *testing.T) {
	t.Parallel()
	responder := &stubResponder{result: &assistant.ResponderResult{Response: "Which event?"}}
	d, cs, _ := newDispatcher(t, assistant.WithResponder(responder))

	// A bare intent keyword with no other slots sits at the routing
	// threshold; the fast path requires strictly more.
	reply, err := d.Process(context.Background(), "u1", "cancel", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Source != assistant.SourceAI {
		t.Errorf("Source = %q, want %q (threshold is strict)", reply.Source, assistant.SourceAI)
	}
	if got := cs.CallCount("DeleteEvent"); got != 0 {
		t.Errorf("DeleteEvent calls = %d, want 0", got)
	}
}

func TestProcessAllDayBoundary(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)
	ctx := context.Background()

	if _, err := d.Process(ctx, "u1", "Schedule workshop tomorrow all day", "s1"); err != nil {
		t.Fatalf("Process all day: %v", err)
	}
	if _, err := d.Process(ctx, "u1", "Schedule training tomorrow at 9am for 7 hours 59 minutes", "s2"); err != nil {
		t.Fatalf("Process timed: %v", err)
	}

	if len(cs.Events) != 2 {
		t.Fatalf("stored events = %d, want 2", len(cs.Events))
	}
	allDay, timed := cs.Events[0], cs.Events[1]
	if !allDay.AllDay || allDay.Time != "" {
		t.Errorf("480-minute event = {allDay:%v time:%q}, want all-day with no time", allDay.AllDay, allDay.Time)
	}
	if timed.AllDay || timed.Time != "09:00" {
		t.Errorf("479-minute event = {allDay:%v time:%q}, want timed at 09:00", timed.AllDay, timed.Time)
	}
}

func TestProcessModifyAsksForSelection(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)
	cs.Events = []store.CalendarEvent{
		{UserID: "u1", Date: "2024-03-12", Time: "09:30", Title: "Standup"},
		{UserID: "u1", Date: "2024-03-13", Time: "15:00", Title: "Dentist"},
	}

	reply, err := d.Process(context.Background(), "u1", "Reschedule the standup", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Action != types.ActionRequestEventSelection {
		t.Errorf("Action = %q, want REQUEST_EVENT_SELECTION", reply.Action)
	}
	candidates, ok := reply.Data["candidates"].([]store.CalendarEvent)
	if !ok || len(candidates) != 1 || candidates[0].Title != "Standup" {
		t.Errorf("candidates = %+v, want the standup event", reply.Data["candidates"])
	}
	if got := cs.CallCount("UpdateEvent"); got != 0 {
		t.Errorf("UpdateEvent calls = %d, want 0 (selection pending)", got)
	}
}

func TestProcessStoreFailureYieldsApology(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)
	cs.CreateEventErr = errors.New("connection refused")

	reply, err := d.Process(context.Background(), "u1", "Schedule lunch with Alice tomorrow at 1pm", "s1")
	if err != nil {
		t.Fatalf("Process returned error %v, want recovered reply", err)
	}
	if reply.Action != types.ActionError {
		t.Errorf("Action = %q, want ERROR", reply.Action)
	}
	if !strings.Contains(reply.Response, "trouble") {
		t.Errorf("Response = %q, want generic apology", reply.Response)
	}
}

func TestProcessEmptyMessageIsValidationError(t *testing.T) {
	t.Parallel()
	d, _, ms := newDispatcher(t)

	_, err := d.Process(context.Background(), "u1", "", "s1")
	if !errors.Is(err, assistant.ErrMessageRequired) {
		t.Errorf("error = %v, want ErrMessageRequired", err)
	}
	if got := ms.CallCount("StoreConversation"); got != 0 {
		t.Errorf("StoreConversation calls = %d, want 0", got)
	}
}

func TestResponderConfirmActionIsDryRun(t *testing.T) {
	t.Parallel()
	responder := &stubResponder{result: &assistant.ResponderResult{
		Response: "Should I book the dentist for Friday at 3 PM?",
		Action:   types.ActionConfirmCreateEvent,
		Data:     map[string]any{"title": "Dentist", "date": "2024-03-15", "time": "15:00"},
	}}
	d, cs, _ := newDispatcher(t, assistant.WithResponder(responder))

	reply, err := d.Process(context.Background(), "u1", "hmm maybe the dentist", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.ActionResult == nil || reply.ActionResult.Performed {
		t.Errorf("ActionResult = %+v, want dry-run (not performed)", reply.ActionResult)
	}
	if got := cs.CallCount("CreateEvent"); got != 0 {
		t.Errorf("CreateEvent calls = %d, want 0 (confirmation pending)", got)
	}
}

func TestResponderShowScheduleActionReadsRange(t *testing.T) {
	t.Parallel()
	responder := &stubResponder{result: &assistant.ResponderResult{
		Response: "Here's this week.",
		Action:   types.ActionShowSchedule,
		Data:     map[string]any{"startDate": "2024-03-11", "endDate": "2024-03-15"},
	}}
	d, cs, _ := newDispatcher(t, assistant.WithResponder(responder))
	cs.Events = []store.CalendarEvent{
		{UserID: "u1", Date: "2024-03-13", Time: "10:00", Title: "Planning"},
	}

	reply, err := d.Process(context.Background(), "u1", "umm what does my week look like", "s1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.ActionResult == nil || !reply.ActionResult.Performed {
		t.Fatalf("ActionResult = %+v, want performed read", reply.ActionResult)
	}
	if len(reply.ActionResult.Events) != 1 || reply.ActionResult.Events[0].Title != "Planning" {
		t.Errorf("ActionResult.Events = %+v, want the planning event", reply.ActionResult.Events)
	}
}

func TestProcessSerializesTurnsPerSession(t *testing.T) {
	t.Parallel()
	d, _, ms := newDispatcher(t)
	ctx := context.Background()

	for _, msg := range []string{"Schedule lunch tomorrow at noon", "What's on my calendar today?"} {
		if _, err := d.Process(ctx, "u1", msg, "s1"); err != nil {
			t.Fatalf("Process %q: %v", msg, err)
		}
	}
	waitFor(t, func() bool { return ms.CallCount("StoreConversation") == 2 })

	turns, err := ms.GetConversationHistory(ctx, "u1", "s1", 10)
	if err != nil {
		t.Fatalf("GetConversationHistory: %v", err)
	}
	if len(turns) != 2 || turns[0].UserMessage != "Schedule lunch tomorrow at noon" {
		t.Errorf("turns = %+v, want both turns in arrival order", turns)
	}
}

func TestExecuteToolCreateAndQuery(t *testing.T) {
	t.Parallel()
	d, cs, _ := newDispatcher(t)
	ctx := context.Background()

	out, err := d.ExecuteTool(ctx, "u1", assistant.ToolCreateEvent,
		`{"title":"Dentist","date":"2024-03-15","time":"15:00"}`)
	if err != nil {
		t.Fatalf("create tool: %v", err)
	}
	if out["success"] != true {
		t.Errorf("create tool output = %+v, want success", out)
	}
	if len(cs.Events) != 1 || cs.Events[0].Title != "Dentist" {
		t.Fatalf("events = %+v, want the dentist event", cs.Events)
	}

	out, err = d.ExecuteTool(ctx, "u1", assistant.ToolQueryEvents, `{"start_date":"2024-03-15"}`)
	if err != nil {
		t.Fatalf("query tool: %v", err)
	}
	events, ok := out["events"].([]store.CalendarEvent)
	if !ok || len(events) != 1 {
		t.Errorf("query tool events = %+v, want one", out["events"])
	}

	if _, err := d.ExecuteTool(ctx, "u1", assistant.ToolCreateEvent, `{"title":"x"}`); err == nil {
		t.Error("create tool without date/time succeeded, want error")
	}
	if _, err := d.ExecuteTool(ctx, "u1", "open_garage_door", `{}`); err == nil {
		t.Error("unknown tool succeeded, want error")
	}
}
