package responder

import (
	"encoding/json"
	"strings"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/pkg/types"
)

// envelope is the JSON reply shape the system prompt asks the model for.
type envelope struct {
	Response string         `json:"response"`
	Action   string         `json:"action"`
	Data     map[string]any `json:"data"`
	Intent   string         `json:"intent"`
	Entities types.Entities `json:"entities"`
}

// parseEnvelope decodes the model's reply leniently.
//
// Models wrap JSON in code fences, prepend chatter, or ignore the format
// entirely; anything that cannot be decoded falls back to treating the whole
// reply as plain conversational text.
func parseEnvelope(content string) *assistant.ResponderResult {
	raw := strings.TrimSpace(content)

	candidate := stripCodeFence(raw)
	if start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}"); start >= 0 && end > start {
		var env envelope
		if err := json.Unmarshal([]byte(candidate[start:end+1]), &env); err == nil && env.Response != "" {
			return &assistant.ResponderResult{
				Response: env.Response,
				Action:   validAction(env.Action),
				Data:     env.Data,
				Intent:   validIntent(env.Intent),
				Entities: env.Entities,
			}
		}
	}

	return &assistant.ResponderResult{Response: raw}
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func validAction(s string) types.Action {
	switch a := types.Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case types.ActionConfirmCreateEvent, types.ActionConfirmDeleteEvent,
		types.ActionShowSchedule, types.ActionRequestDate,
		types.ActionRequestTime, types.ActionRequestEventSelection:
		return a
	default:
		return ""
	}
}

func validIntent(s string) types.Intent {
	if i := types.Intent(strings.ToUpper(strings.TrimSpace(s))); i.IsValid() {
		return i
	}
	return ""
}
