package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"
)

// allDayMinutes is the duration at or above which an event spans the whole
// day and carries no start time.
const allDayMinutes = 480

const (
	storeApology  = "I had trouble creating that event. Please try again."
	queryApology  = "I had trouble reading your calendar. Please try again."
	askForDate    = "What day would you like to schedule that for?"
	askForTime    = "What time should the event start?"
	selectionDays = 30
)

// ActionResult reports what the handler table did for a dispatched action.
type ActionResult struct {
	Action    types.Action          `json:"action"`
	Performed bool                  `json:"performed"`
	Message   string                `json:"message,omitempty"`
	Events    []store.CalendarEvent `json:"events,omitempty"`
}

// handleCreate fills the reply for a CREATE turn: clarification when a slot
// is missing, otherwise a store write.
func (d *Dispatcher) handleCreate(ctx context.Context, userID string, e types.Entities, reply *Reply) {
	if e.Date == "" {
		reply.Response = askForDate
		reply.Action = types.ActionRequestDate
		return
	}
	allDay := e.Duration >= allDayMinutes
	if !allDay && e.Time == "" {
		reply.Response = askForTime
		reply.Action = types.ActionRequestTime
		return
	}

	event, err := d.createEvent(ctx, userID, e)
	if err != nil {
		slog.Error("assistant: event write failed", "user_id", userID, "error", err)
		reply.Response = storeApology
		reply.Action = types.ActionError
		return
	}

	if event.AllDay {
		reply.Response = fmt.Sprintf("Perfect! I've scheduled %q for %s, all day.", event.Title, longDate(event.Date))
	} else {
		reply.Response = fmt.Sprintf("Perfect! I've scheduled %q for %s at %s.", event.Title, longDate(event.Date), clock12(event.Time))
	}
	reply.Action = types.ActionEventCreated
	reply.Data = map[string]any{"event": event, "original": e}
}

// createEvent materializes an event from the slot bag and writes it. The
// caller has already ensured date (and time, unless all-day) are present.
func (d *Dispatcher) createEvent(ctx context.Context, userID string, e types.Entities) (store.CalendarEvent, error) {
	allDay := e.Duration >= allDayMinutes

	event := store.CalendarEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    e.Title,
		Date:     e.Date,
		Location: e.Location,
		AllDay:   allDay,
	}
	if event.Title == "" {
		event.Title = "New Event"
	}
	if !allDay {
		event.Time = e.Time
	}
	if event.Type = e.EventType; event.Type == "" {
		event.Type = "other"
	}
	if len(e.Participants) > 0 {
		event.Description = "With " + strings.Join(e.Participants, ", ")
	}
	if e.Recurrence != nil {
		event.Recurring = true
		event.RecurringType = e.Recurrence.Type
	}

	start := d.now()
	created, err := d.calendar.CreateEvent(ctx, event)
	d.metrics.StoreOpDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return store.CalendarEvent{}, fmt.Errorf("assistant: create event: %w", err)
	}
	return created, nil
}

// handleQuery fills the reply for a QUERY turn: a single day, either the
// extracted date or today.
func (d *Dispatcher) handleQuery(ctx context.Context, userID string, e types.Entities, reply *Reply) {
	day := e.Date
	if day == "" {
		day = d.now().Format("2006-01-02")
	}

	events, err := d.queryEvents(ctx, userID, day, day)
	if err != nil {
		slog.Error("assistant: schedule read failed", "user_id", userID, "error", err)
		reply.Response = queryApology
		reply.Action = types.ActionError
		return
	}

	reply.Data = map[string]any{"startDate": day, "endDate": day, "events": events}
	if len(events) == 0 {
		reply.Response = fmt.Sprintf("You have no events scheduled for %s.", longDate(day))
		reply.Action = types.ActionShowEmptySchedule
		return
	}
	reply.Response = scheduleList(day, events)
	reply.Action = types.ActionShowSchedule
}

func (d *Dispatcher) queryEvents(ctx context.Context, userID, startDate, endDate string) ([]store.CalendarEvent, error) {
	start := d.now()
	events, err := d.calendar.GetEventsByDateRange(ctx, userID, startDate, endDate)
	d.metrics.StoreOpDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("assistant: query events: %w", err)
	}
	return events, nil
}

// handleSelection asks the user which event a MODIFY or DELETE refers to.
// When the turn carried a title, upcoming events are ranked by fuzzy match
// and offered as candidates.
func (d *Dispatcher) handleSelection(ctx context.Context, userID string, intent types.Intent, e types.Entities, reply *Reply) {
	verb := "change"
	if intent == types.IntentDelete {
		verb = "cancel"
	}
	reply.Action = types.ActionRequestEventSelection

	if e.Title == "" || e.Title == "New Event" {
		reply.Response = fmt.Sprintf("Which event would you like to %s?", verb)
		return
	}

	events, err := d.calendar.GetUserEvents(ctx, userID, selectionDays)
	if err != nil {
		slog.Error("assistant: candidate load failed", "user_id", userID, "error", err)
		reply.Response = fmt.Sprintf("Which event would you like to %s?", verb)
		return
	}

	candidates := d.matcher.rank(e.Title, events)
	if len(candidates) == 0 {
		reply.Response = fmt.Sprintf("I couldn't find an event matching %q. Which event would you like to %s?", e.Title, verb)
		return
	}

	reply.Data = map[string]any{"candidates": candidates}
	reply.Response = candidateList(verb, candidates)
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared action handler table
// ─────────────────────────────────────────────────────────────────────────────

// dispatchAction runs one action through the shared side-effect layer.
// Confirmation actions are a dry run: the user must follow up explicitly
// before anything is written. Unknown actions are a no-op.
func (d *Dispatcher) dispatchAction(ctx context.Context, userID string, action types.Action, data map[string]any) (*ActionResult, error) {
	switch action {
	case types.ActionConfirmCreateEvent:
		return &ActionResult{
			Action:  action,
			Message: "Waiting for your confirmation before creating the event.",
		}, nil

	case types.ActionConfirmDeleteEvent:
		return &ActionResult{
			Action:  action,
			Message: "Waiting for your confirmation before deleting the event.",
		}, nil

	case types.ActionShowSchedule:
		startDate, _ := data["startDate"].(string)
		endDate, _ := data["endDate"].(string)
		if startDate == "" {
			startDate = d.now().Format("2006-01-02")
		}
		if endDate == "" {
			endDate = startDate
		}
		events, err := d.queryEvents(ctx, userID, startDate, endDate)
		if err != nil {
			return nil, err
		}
		return &ActionResult{Action: action, Performed: true, Events: events}, nil

	case types.ActionRequestDate, types.ActionRequestTime, types.ActionRequestEventSelection:
		// UI markers; no side effect.
		return &ActionResult{Action: action}, nil

	default:
		return &ActionResult{Action: action}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tool dispatch (audio bridge)
// ─────────────────────────────────────────────────────────────────────────────

// ToolCreateEvent and ToolQueryEvents are the tool names exposed to the
// speech model.
const (
	ToolCreateEvent = "create_calendar_event"
	ToolQueryEvents = "query_calendar_events"
)

type createToolArgs struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Duration    int    `json:"duration,omitempty"`
	Description string `json:"description,omitempty"`
}

type queryToolArgs struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// ExecuteTool resolves a speech-model tool call through the same handlers as
// the text path. The result is a JSON-encodable map the bridge relays back.
func (d *Dispatcher) ExecuteTool(ctx context.Context, userID, name, argsJSON string) (map[string]any, error) {
	status := "ok"
	defer func() { d.metrics.RecordToolCall(ctx, name, status) }()

	switch name {
	case ToolCreateEvent:
		var args createToolArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			status = "error"
			return nil, fmt.Errorf("assistant: tool %s: decode args: %w", name, err)
		}
		if args.Title == "" || args.Date == "" || args.Time == "" {
			status = "error"
			return nil, fmt.Errorf("assistant: tool %s: title, date and time are required", name)
		}
		event, err := d.createEvent(ctx, userID, types.Entities{
			Title:    args.Title,
			Date:     args.Date,
			Time:     args.Time,
			Duration: args.Duration,
		})
		if err != nil {
			status = "error"
			return nil, err
		}
		return map[string]any{
			"success": true,
			"event":   event,
			"message": fmt.Sprintf("Scheduled %q for %s at %s.", event.Title, longDate(event.Date), clock12(event.Time)),
		}, nil

	case ToolQueryEvents:
		var args queryToolArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			status = "error"
			return nil, fmt.Errorf("assistant: tool %s: decode args: %w", name, err)
		}
		if args.StartDate == "" {
			status = "error"
			return nil, fmt.Errorf("assistant: tool %s: start_date is required", name)
		}
		endDate := args.EndDate
		if endDate == "" {
			endDate = args.StartDate
		}
		events, err := d.queryEvents(ctx, userID, args.StartDate, endDate)
		if err != nil {
			status = "error"
			return nil, err
		}
		return map[string]any{"success": true, "events": events}, nil

	default:
		status = "unknown"
		return nil, fmt.Errorf("assistant: unknown tool %q", name)
	}
}
