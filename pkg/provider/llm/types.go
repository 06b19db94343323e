package llm

// Message is one turn in the conversation the fallback responder replays to
// the model: the system prompt, the user's request, prior assistant turns
// and any tool results produced by the calendar tool registry.
type Message struct {
	// Role is "system", "user", "assistant" or "tool".
	Role string

	// Content is the plain-text body of the turn.
	Content string

	// Name optionally identifies the speaker, e.g. the acting user's ID on
	// user turns so multi-user histories stay attributable.
	Name string

	// ToolCalls holds the calendar or memory operations the model asked for
	// on an assistant turn.
	ToolCalls []ToolCall

	// ToolCallID links a "tool" turn back to the call it answers.
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model, e.g.
// create_calendar_event or query_calendar_events.
type ToolCall struct {
	// ID is the provider-assigned identifier; tool results must echo it.
	ID string

	// Name is the tool name as registered with the tool registry.
	Name string

	// Arguments is the JSON-encoded argument object.
	Arguments string
}

// ToolDefinition advertises one registry tool to the model. The responder
// builds these from the calendar tool schemas on every fallback turn.
type ToolDefinition struct {
	// Name must match the registry entry exactly.
	Name string

	// Description tells the model when to pick this tool.
	Description string

	// Parameters is the JSON Schema for the argument object.
	Parameters map[string]any
}

// ModelCapabilities describes the limits the responder budgets against when
// assembling a fallback prompt.
type ModelCapabilities struct {
	// ContextWindow is the combined input and output token limit.
	ContextWindow int

	// MaxOutputTokens caps a single completion.
	MaxOutputTokens int

	// SupportsToolCalling reports native function calling. Models without
	// it cannot serve calendar operations, only conversational replies.
	SupportsToolCalling bool

	// SupportsVision reports image input support.
	SupportsVision bool

	// SupportsStreaming reports incremental output support.
	SupportsStreaming bool
}
