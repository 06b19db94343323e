package responder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/pkg/provider/llm"
	"github.com/mirevald/daybook/pkg/store"
)

const persona = `You are Daybook, a personal calendar and task assistant. ` +
	`You help the user schedule, find, change and cancel calendar events, and you ` +
	`answer in a warm, concise tone.

Always answer with a single JSON object of this shape:
{"response": "<what to say to the user>", "action": "<action or empty>", "intent": "<CREATE|MODIFY|DELETE|QUERY|UNKNOWN>", "entities": {...}, "data": {...}}

Allowed actions: CONFIRM_CREATE_EVENT, CONFIRM_DELETE_EVENT, SHOW_SCHEDULE,
REQUEST_DATE, REQUEST_TIME, REQUEST_EVENT_SELECTION. Leave "action" empty for
plain conversation. Never claim an event was written: CONFIRM_* actions only
ask the user to confirm.`

// buildSystemPrompt renders the persona plus everything the memory service
// knows about this user into one system prompt.
func buildSystemPrompt(req assistant.ResponderRequest) string {
	var sb strings.Builder
	sb.WriteString(persona)

	if section := memorySection(req.UserContext); section != "" {
		sb.WriteString("\n\nWhat you know about this user:\n")
		sb.WriteString(section)
	}

	if section := suggestionSection(req); section != "" {
		sb.WriteString("\n\nSuggestions from the user's past behavior:\n")
		sb.WriteString(section)
	}

	if req.Parsed.Intent != "" {
		sb.WriteString("\n\nThe deterministic parser read this turn as intent ")
		sb.WriteString(string(req.Parsed.Intent))
		if encoded, err := json.Marshal(req.Parsed.Entities); err == nil && string(encoded) != "{}" {
			sb.WriteString(" with entities ")
			sb.Write(encoded)
		}
		sb.WriteString(fmt.Sprintf(" at confidence %.2f. Treat it as a hint, not a verdict.", req.Parsed.Confidence))
	}

	return sb.String()
}

// memorySection lists memories grouped by category in presentation order.
func memorySection(userContext map[store.Category][]store.Memory) string {
	var sb strings.Builder
	for _, cat := range store.Categories() {
		memories := userContext[cat]
		if len(memories) == 0 {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(string(cat))
		sb.WriteString(":")
		for _, m := range memories {
			sb.WriteString(" ")
			sb.WriteString(m.Key)
			sb.WriteString("=")
			sb.WriteString(m.Value)
			sb.WriteString(";")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func suggestionSection(req assistant.ResponderRequest) string {
	var lines []string
	rec := req.Recommendations
	if len(rec.SuggestedTimes) > 0 {
		lines = append(lines, "- preferred times: "+strings.Join(rec.SuggestedTimes, ", "))
	}
	if len(rec.SuggestedDurations) > 0 {
		parts := make([]string, len(rec.SuggestedDurations))
		for i, d := range rec.SuggestedDurations {
			parts[i] = fmt.Sprintf("%d minutes", d)
		}
		lines = append(lines, "- typical duration: "+strings.Join(parts, ", "))
	}
	if len(rec.SuggestedParticipants) > 0 {
		lines = append(lines, "- frequent participants: "+strings.Join(rec.SuggestedParticipants, ", "))
	}
	return strings.Join(lines, "\n")
}

// buildMessages converts the recent conversation history into alternating
// user/assistant messages, oldest first, with the current message last.
func buildMessages(req assistant.ResponderRequest) []llm.Message {
	messages := make([]llm.Message, 0, len(req.RecentConversations)*2+1)
	for _, turn := range req.RecentConversations {
		if turn.UserMessage != "" {
			messages = append(messages, llm.Message{Role: "user", Content: turn.UserMessage})
		}
		if turn.AssistantResponse != "" {
			messages = append(messages, llm.Message{Role: "assistant", Content: turn.AssistantResponse})
		}
	}
	return append(messages, llm.Message{Role: "user", Content: req.Message})
}
