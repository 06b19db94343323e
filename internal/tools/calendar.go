package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mirevald/daybook/pkg/provider/llm"
)

// CalendarExecutor executes a calendar tool call on behalf of a user.
// *assistant.Dispatcher satisfies this interface.
type CalendarExecutor interface {
	ExecuteTool(ctx context.Context, userID, name, argsJSON string) (map[string]any, error)
}

// userIDKey is the context key carrying the acting user's ID through tool
// execution. Tool handlers receive only (ctx, args), so per-call identity
// travels on the context.
type userIDKey struct{}

// WithUserID returns a context that carries id for calendar tool handlers.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFrom extracts the acting user's ID from ctx, or "default" when absent.
func UserIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok && id != "" {
		return id
	}
	return "default"
}

// CreateEventDefinition describes the create_calendar_event tool as offered
// to models.
func CreateEventDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "create_calendar_event",
		Description: "Create a calendar event for the user. Requires a title and a date; time defaults to an all-day event when omitted.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string", "description": "Event title"},
				"date":        map[string]any{"type": "string", "description": "Event date in YYYY-MM-DD format"},
				"time":        map[string]any{"type": "string", "description": "Start time in 24h HH:MM format; omit for all-day events"},
				"duration":    map[string]any{"type": "integer", "description": "Duration in minutes"},
				"description": map[string]any{"type": "string", "description": "Optional event description"},
			},
			"required": []string{"title", "date"},
		},
	}
}

// QueryEventsDefinition describes the query_calendar_events tool as offered
// to models.
func QueryEventsDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "query_calendar_events",
		Description: "List the user's calendar events in a date range. Both dates are inclusive and in YYYY-MM-DD format; omit both for today.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_date": map[string]any{"type": "string", "description": "Range start in YYYY-MM-DD format"},
				"end_date":   map[string]any{"type": "string", "description": "Range end in YYYY-MM-DD format"},
			},
		},
	}
}

// RegisterCalendar registers the builtin calendar tools backed by exec.
// Handlers resolve the acting user from the context via [WithUserID].
func RegisterCalendar(r *Registry, exec CalendarExecutor) error {
	defs := []llm.ToolDefinition{CreateEventDefinition(), QueryEventsDefinition()}
	for _, def := range defs {
		name := def.Name
		err := r.RegisterBuiltin(Builtin{
			Definition: def,
			Handler: func(ctx context.Context, args string) (string, error) {
				out, err := exec.ExecuteTool(ctx, UserIDFrom(ctx), name, args)
				if err != nil {
					return "", err
				}
				data, err := json.Marshal(out)
				if err != nil {
					return "", fmt.Errorf("tools: encode %s result: %w", name, err)
				}
				return string(data), nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
