// Package tools maintains the registry of tools offered to the fallback
// responder and the realtime audio bridge.
//
// Tools come from two sources: built-in Go functions registered in-process
// (the calendar tools), and external MCP servers connected via stdio or
// streamable-HTTP transports using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// Typical usage:
//
//	r := tools.NewRegistry()
//
//	// Register a built-in Go function.
//	err := r.RegisterBuiltin(tools.Builtin{
//	    Definition: llm.ToolDefinition{Name: "create_calendar_event", ...},
//	    Handler:    createEvent,
//	})
//
//	// Or connect an external MCP server.
//	err = r.RegisterServer(ctx, tools.ServerConfig{
//	    Name:      "weather",
//	    Transport: tools.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-weather-server",
//	})
//
//	// Offer the catalogue to a model.
//	defs := r.Definitions()
//
//	// Execute a tool the model requested.
//	result, err := r.Execute(ctx, "create_calendar_event", args)
//
//	// Shut down when done.
//	r.Close()
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mirevald/daybook/pkg/provider/llm"
)

// Transport identifies how the registry connects to an external MCP server.
type Transport string

const (
	// TransportStdio launches the server as a child process and speaks MCP
	// over its stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP connects to a server's streamable-HTTP endpoint.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a known transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one external MCP server to connect to.
type ServerConfig struct {
	// Name uniquely identifies the server within the registry.
	Name string

	// Transport selects stdio or streamable-HTTP.
	Transport Transport

	// Command is the full command line for stdio servers, split on spaces
	// into executable + args.
	Command string

	// Env holds additional environment variables for stdio servers.
	Env map[string]string

	// URL is the endpoint address for streamable-HTTP servers.
	URL string
}

// Builtin is an in-process tool backed by a Go function.
type Builtin struct {
	// Definition is the tool's name, description and JSON Schema parameters
	// as offered to the model.
	Definition llm.ToolDefinition

	// Handler executes the tool. args is the JSON-encoded argument object.
	Handler func(ctx context.Context, args string) (string, error)
}

// Result is the outcome of a single tool execution.
type Result struct {
	// Content is the concatenated text output of the tool.
	Content string

	// IsError indicates the tool itself reported a failure. Transport and
	// registry errors are returned as Go errors instead.
	IsError bool
}

// entry holds the metadata for a single registered tool.
type entry struct {
	def        llm.ToolDefinition
	serverName string

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// serverConn holds a live connection to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Registry is a concurrent-safe catalogue of builtin and MCP-served tools.
//
// The zero value is NOT usable; create instances with [NewRegistry].
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]entry
	servers map[string]serverConn

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// NewRegistry creates and returns a ready-to-use Registry.
func NewRegistry() *Registry {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "daybook-tools", Version: "1.0.0"},
		nil,
	)
	return &Registry{
		tools:   make(map[string]entry),
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterBuiltin adds an in-process tool to the registry. Registering a
// tool whose name is already taken replaces the previous entry.
func (r *Registry) RegisterBuiltin(t Builtin) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tools: builtin tool must have a non-empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: builtin tool %q must have a handler", t.Definition.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition.Name] = entry{
		def:       t.Definition,
		builtinFn: t.Handler,
	}
	return nil
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue into the registry. If a server with the same Name is already
// registered, the old connection is closed and replaced.
//
// For [TransportStdio]: cfg.Command is split on spaces into executable + args;
// cfg.Env is passed as additional environment variables.
//
// For [TransportStreamableHTTP]: cfg.URL is the endpoint address.
//
// Returns an error if the transport cannot be established or the initial tool
// listing fails.
func (r *Registry) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := r.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: failed to connect to server %q: %w", cfg.Name, err)
	}

	// Discover tools using the iterator.
	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Close the old connection if it exists.
	if old, ok := r.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range r.tools {
			if t.serverName == cfg.Name {
				delete(r.tools, name)
			}
		}
	}

	r.servers[cfg.Name] = serverConn{session: session}

	for _, tool := range discovered {
		r.tools[tool.Name] = entry{
			def: llm.ToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaToMap(tool.InputSchema),
			},
			serverName: cfg.Name,
		}
	}

	return nil
}

// Definitions returns all registered tool definitions sorted by name.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool with the given JSON-encoded arguments.
//
// Builtin handler errors are converted into a Result with IsError set so the
// model can see the failure text; registry-level failures (unknown tool,
// broken server connection) are returned as Go errors.
func (r *Registry) Execute(ctx context.Context, name, args string) (*Result, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tools: tool %q not found", name)
	}

	if e.builtinFn != nil {
		output, err := e.builtinFn(ctx, args)
		if err != nil {
			return &Result{Content: err.Error(), IsError: true}, nil
		}
		return &Result{Content: output}, nil
	}

	return r.executeMCP(ctx, e, args)
}

func (r *Registry) executeMCP(ctx context.Context, e entry, args string) (*Result, error) {
	r.mu.RLock()
	conn, ok := r.servers[e.serverName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tools: server %q not found for tool %q", e.serverName, e.def.Name)
	}

	// Decode args into a map for the SDK.
	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("tools: invalid args JSON for tool %q: %w", e.def.Name, err)
		}
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      e.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("tools: call to tool %q failed: %w", e.def.Name, err)
	}

	// Concatenate all text content from the result.
	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	return &Result{Content: sb.String(), IsError: callResult.IsError}, nil
}

// Close shuts down all server connections and clears the registry.
// Returns the first close error encountered, if any.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, conn := range r.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: error closing server %q: %w", name, err)
		}
		delete(r.servers, name)
	}
	r.tools = make(map[string]entry)

	return firstErr
}

// schemaToMap converts a tool input schema of unknown concrete type into a
// generic map via a JSON round-trip. Falls back to a bare object schema.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
