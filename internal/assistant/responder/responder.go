// Package responder implements the conversational fallback on top of an
// [llm.Provider].
//
// When the dispatcher cannot resolve a turn deterministically it hands the
// message here together with everything the memory service knows about the
// user. The responder assembles a completion request, runs any tool calls the
// model asks for against the tool registry, and parses the model's reply into
// the dispatcher's result shape. The dispatcher stays in charge of side
// effects: actions returned from here are executed by its action handlers.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/internal/tools"
	"github.com/mirevald/daybook/pkg/provider/llm"
)

const (
	// maxToolRounds caps model→tool→model iterations per turn so a confused
	// model cannot loop forever.
	maxToolRounds = 4

	defaultTemperature = 0.7
	defaultMaxTokens   = 512
)

// Responder is the AI fallback. Safe for concurrent use.
type Responder struct {
	provider    llm.Provider
	registry    *tools.Registry
	temperature float64
	maxTokens   int
}

var _ assistant.Responder = (*Responder)(nil)

// Option customizes a Responder.
type Option func(*Responder)

// WithTools attaches a tool registry. Without one the model is offered no
// tools and tool calls in responses are ignored.
func WithTools(r *tools.Registry) Option {
	return func(res *Responder) {
		res.registry = r
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(res *Responder) {
		res.temperature = t
	}
}

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(n int) Option {
	return func(res *Responder) {
		res.maxTokens = n
	}
}

// New creates a Responder backed by provider.
func New(provider llm.Provider, opts ...Option) *Responder {
	r := &Responder{
		provider:    provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond produces a reply for one ambiguous turn.
//
// The model is prompted with the user's memory summary, behavioral
// suggestions, the parser's reading of the turn, and the recent conversation
// history, then asked for a JSON envelope. Tool calls are executed through
// the registry with the acting user on the context; tool failures are fed
// back to the model rather than failing the turn.
func (r *Responder) Respond(ctx context.Context, req assistant.ResponderRequest) (*assistant.ResponderResult, error) {
	creq := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(req),
		Messages:     buildMessages(req),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}
	if r.registry != nil {
		creq.Tools = r.registry.Definitions()
		ctx = tools.WithUserID(ctx, req.UserID)
	}

	var resp *llm.CompletionResponse
	for round := 0; ; round++ {
		var err error
		resp, err = r.provider.Complete(ctx, creq)
		if err != nil {
			return nil, fmt.Errorf("responder: completion: %w", err)
		}
		if resp == nil {
			return nil, errors.New("responder: provider returned no response")
		}
		if len(resp.ToolCalls) == 0 || r.registry == nil || round >= maxToolRounds {
			break
		}
		creq.Messages = r.runToolRound(ctx, creq.Messages, resp)
	}

	return parseEnvelope(resp.Content), nil
}

// runToolRound executes every tool call in resp and appends the assistant
// turn plus one tool-result message per call to the conversation.
func (r *Responder) runToolRound(ctx context.Context, messages []llm.Message, resp *llm.CompletionResponse) []llm.Message {
	messages = append(messages, llm.Message{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	for _, call := range resp.ToolCalls {
		content := r.executeTool(ctx, call)
		messages = append(messages, llm.Message{
			Role:       "tool",
			Name:       call.Name,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
	return messages
}

func (r *Responder) executeTool(ctx context.Context, call llm.ToolCall) string {
	result, err := r.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		slog.Warn("responder: tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	if result.IsError {
		slog.Warn("responder: tool reported error", "tool", call.Name, "output", result.Content)
		return fmt.Sprintf(`{"error":%q}`, result.Content)
	}
	return result.Content
}
