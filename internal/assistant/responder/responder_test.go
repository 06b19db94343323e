package responder_test

import (
	"context"
	"strings"
	"testing"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/internal/assistant/responder"
	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/internal/nlp"
	"github.com/mirevald/daybook/internal/tools"
	"github.com/mirevald/daybook/pkg/provider/llm"
	"github.com/mirevald/daybook/pkg/provider/llm/mock"
	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"
)

func TestRespondParsesEnvelopeAndBuildsPrompt(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"response":"Should I book the dentist for Friday?","action":"CONFIRM_CREATE_EVENT","intent":"CREATE","entities":{"title":"Dentist"},"data":{"slot":"friday"}}`,
		},
	}
	r := responder.New(provider)

	req := assistant.ResponderRequest{
		UserID:    "rachel",
		Message:   "hmm maybe the dentist",
		SessionID: "s1",
		UserContext: map[store.Category][]store.Memory{
			store.CategoryPreferences: {
				{Key: "preferred_lunch_time", Value: "13:00"},
			},
		},
		RecentConversations: []store.Conversation{
			{UserMessage: "hi", AssistantResponse: "Hello! How can I help?"},
			{UserMessage: "what's today like", AssistantResponse: "You have no events scheduled for 2024-03-11."},
		},
		Recommendations: memory.Recommendations{
			SuggestedTimes:        []string{"09:00", "14:00"},
			SuggestedParticipants: []string{"Alice"},
		},
		Parsed: nlp.Result{Intent: types.IntentUnknown, Confidence: 0.3},
	}

	res, err := r.Respond(context.Background(), req)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != "Should I book the dentist for Friday?" {
		t.Errorf("response = %q", res.Response)
	}
	if res.Action != types.ActionConfirmCreateEvent {
		t.Errorf("action = %q, want CONFIRM_CREATE_EVENT", res.Action)
	}
	if res.Intent != types.IntentCreate {
		t.Errorf("intent = %q, want CREATE", res.Intent)
	}
	if res.Entities.Title != "Dentist" {
		t.Errorf("entities.Title = %q", res.Entities.Title)
	}
	if res.Data["slot"] != "friday" {
		t.Errorf("data = %v", res.Data)
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("got %d Complete calls, want 1", len(provider.CompleteCalls))
	}
	creq := provider.CompleteCalls[0].Req

	if !strings.Contains(creq.SystemPrompt, "preferred_lunch_time=13:00") {
		t.Error("system prompt is missing the user's memories")
	}
	if !strings.Contains(creq.SystemPrompt, "preferred times: 09:00, 14:00") {
		t.Error("system prompt is missing behavioral suggestions")
	}
	if !strings.Contains(creq.SystemPrompt, "intent UNKNOWN") {
		t.Error("system prompt is missing the parser hint")
	}
	if len(creq.Tools) != 0 {
		t.Errorf("got %d tools without a registry, want 0", len(creq.Tools))
	}

	wantRoles := []string{"user", "assistant", "user", "assistant", "user"}
	if len(creq.Messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(creq.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if creq.Messages[i].Role != role {
			t.Errorf("messages[%d].Role = %q, want %q", i, creq.Messages[i].Role, role)
		}
	}
	if last := creq.Messages[len(creq.Messages)-1]; last.Content != "hmm maybe the dentist" {
		t.Errorf("final message = %q", last.Content)
	}
}

func TestRespondFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "no JSON at all",
			content: "Sure, I can help with that!",
			want:    "Sure, I can help with that!",
		},
		{
			name:    "code-fenced envelope",
			content: "```json\n{\"response\":\"Got it.\",\"action\":\"\"}\n```",
			want:    "Got it.",
		},
		{
			name:    "chatter around the envelope",
			content: "Here you go: {\"response\":\"Done thinking.\"} hope that helps",
			want:    "Done thinking.",
		},
		{
			name:    "envelope without a response field",
			content: `{"action":"SHOW_SCHEDULE"}`,
			want:    `{"action":"SHOW_SCHEDULE"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			provider := &mock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: tc.content},
			}
			res, err := responder.New(provider).Respond(context.Background(), assistant.ResponderRequest{Message: "hi"})
			if err != nil {
				t.Fatalf("Respond: %v", err)
			}
			if res.Response != tc.want {
				t.Errorf("response = %q, want %q", res.Response, tc.want)
			}
		})
	}
}

func TestRespondSanitizesActionAndIntent(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"response":"ok","action":"LAUNCH_MISSILES","intent":"banana"}`,
		},
	}
	res, err := responder.New(provider).Respond(context.Background(), assistant.ResponderRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Action != "" {
		t.Errorf("action = %q, want empty for unknown action", res.Action)
	}
	if res.Intent != "" {
		t.Errorf("intent = %q, want empty for unknown intent", res.Intent)
	}
}

func TestRespondRunsToolRound(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry()
	defer registry.Close()

	var gotUser, gotArgs string
	err := registry.RegisterBuiltin(tools.Builtin{
		Definition: llm.ToolDefinition{Name: "lookup", Parameters: map[string]any{"type": "object"}},
		Handler: func(ctx context.Context, args string) (string, error) {
			gotUser = tools.UserIDFrom(ctx)
			gotArgs = args
			return `{"found":true}`, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}

	provider := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "lookup", Arguments: `{"q":"dentist"}`}}},
			{Content: `{"response":"Found it."}`},
		},
	}

	r := responder.New(provider, responder.WithTools(registry))
	res, err := r.Respond(context.Background(), assistant.ResponderRequest{UserID: "rachel", Message: "find my dentist visit"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != "Found it." {
		t.Errorf("response = %q", res.Response)
	}

	if gotUser != "rachel" {
		t.Errorf("tool handler saw user %q, want rachel", gotUser)
	}
	if gotArgs != `{"q":"dentist"}` {
		t.Errorf("tool handler saw args %q", gotArgs)
	}

	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("got %d Complete calls, want 2", len(provider.CompleteCalls))
	}
	first := provider.CompleteCalls[0].Req
	if len(first.Tools) != 1 || first.Tools[0].Name != "lookup" {
		t.Errorf("first request tools = %v", first.Tools)
	}

	second := provider.CompleteCalls[1].Req
	n := len(second.Messages)
	if n < 3 {
		t.Fatalf("second request has %d messages", n)
	}
	assistantMsg, toolMsg := second.Messages[n-2], second.Messages[n-1]
	if assistantMsg.Role != "assistant" || len(assistantMsg.ToolCalls) != 1 {
		t.Errorf("assistant turn not threaded back: %+v", assistantMsg)
	}
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" || toolMsg.Content != `{"found":true}` {
		t.Errorf("tool result not threaded back: %+v", toolMsg)
	}
}

func TestRespondFeedsToolFailureToModel(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry()
	defer registry.Close()

	provider := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "nonexistent", Arguments: "{}"}}},
			{Content: `{"response":"Sorry, I couldn't check that."}`},
		},
	}

	r := responder.New(provider, responder.WithTools(registry))
	res, err := r.Respond(context.Background(), assistant.ResponderRequest{Message: "check"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != "Sorry, I couldn't check that." {
		t.Errorf("response = %q", res.Response)
	}

	second := provider.CompleteCalls[1].Req
	toolMsg := second.Messages[len(second.Messages)-1]
	if toolMsg.Role != "tool" || !strings.Contains(toolMsg.Content, "error") {
		t.Errorf("tool failure not surfaced to the model: %+v", toolMsg)
	}
}

func TestRespondCapsToolRounds(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry()
	defer registry.Close()

	err := registry.RegisterBuiltin(tools.Builtin{
		Definition: llm.ToolDefinition{Name: "loop"},
		Handler: func(context.Context, string) (string, error) {
			return "again", nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}

	// The provider asks for the same tool forever.
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content:   "Still working on it.",
			ToolCalls: []llm.ToolCall{{ID: "c", Name: "loop", Arguments: "{}"}},
		},
	}

	r := responder.New(provider, responder.WithTools(registry))
	res, err := r.Respond(context.Background(), assistant.ResponderRequest{Message: "go"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != "Still working on it." {
		t.Errorf("response = %q", res.Response)
	}
	if len(provider.CompleteCalls) != 5 {
		t.Errorf("got %d Complete calls, want 5 (initial + 4 tool rounds)", len(provider.CompleteCalls))
	}
}

func TestRespondPropagatesProviderError(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteErr: context.DeadlineExceeded}
	_, err := responder.New(provider).Respond(context.Background(), assistant.ResponderRequest{Message: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "completion") {
		t.Errorf("err = %v, want wrapped completion error", err)
	}
}
