package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State is a session's position in its lifecycle.
type State int

const (
	// StateIdle means no upstream has been dialled yet.
	StateIdle State = iota
	// StateConnecting means an upstream dial is in flight.
	StateConnecting
	// StateReady means frames are flowing in both directions.
	StateReady
	// StateRenewing means the upstream socket is being replaced.
	StateRenewing
	// StateTornDown means the session has been cleaned up.
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateRenewing:
		return "renewing"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// frameEnvelope is the decoded subset of a frame the bridge interprets; the
// raw bytes are what gets forwarded.
type frameEnvelope struct {
	Type string `json:"type"`

	// session.update payload.
	Session map[string]any `json:"session,omitempty"`

	// response.function_call_arguments.done fields.
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error event detail.
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorFrame struct {
	Type  string      `json:"type"`
	Error errorDetail `json:"error"`
}

// Session is one client's two-socket proxy. All mutable state is guarded by
// mu; the client read loop, the upstream read loop and the timers touch it
// concurrently.
type Session struct {
	bridge   *Bridge
	clientID string
	userID   string
	client   Conn

	mu                sync.Mutex
	state             State
	upstream          Conn
	startedAt         time.Time
	reconnectAttempts int
	activeResponse    bool
	configured        bool
	lastConfig        map[string]any
	closed            bool

	warnTimer  *time.Timer
	renewTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// ── Client → upstream ──────────────────────────────────────────────────────────

func (s *Session) handleClientFrame(ctx context.Context, data []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		s.sendClientError(ctx, "invalid_request_error", "frames must be JSON objects with a type field")
		return
	}
	s.bridge.metrics.RecordBridgeFrame(ctx, "client", env.Type)

	switch env.Type {
	case "session.update":
		s.handleSessionUpdate(ctx, data, env.Session)
	case "input_audio_buffer.append", "conversation.item.create":
		s.forwardUpstream(ctx, data)
	case "input_audio_buffer.commit":
		s.handleCommit(ctx, data)
	case "response.create":
		s.emitResponseCreate(ctx, data)
	case "response.cancel":
		s.mu.Lock()
		s.activeResponse = false
		s.mu.Unlock()
		s.forwardUpstream(ctx, data)
	default:
		s.sendClientError(ctx, "invalid_request_error", fmt.Sprintf("unknown message type %q", env.Type))
	}
}

// handleSessionUpdate merges the bridge defaults under the client's overrides
// on the first update; later updates pass through opaquely.
func (s *Session) handleSessionUpdate(ctx context.Context, raw []byte, clientSession map[string]any) {
	s.mu.Lock()
	first := !s.configured
	s.configured = true
	var merged map[string]any
	if first {
		merged = mergeSessionConfig(clientSession)
		s.lastConfig = merged
	}
	s.mu.Unlock()

	if !first {
		s.forwardUpstream(ctx, raw)
		return
	}

	data, err := json.Marshal(map[string]any{"type": "session.update", "session": merged})
	if err != nil {
		s.sendClientError(ctx, "server_error", "failed to build session configuration")
		return
	}
	s.forwardUpstream(ctx, data)
}

// handleCommit forwards the commit and, when no response is in flight, asks
// the model to respond.
func (s *Session) handleCommit(ctx context.Context, raw []byte) {
	s.forwardUpstream(ctx, raw)

	s.mu.Lock()
	if s.activeResponse {
		s.mu.Unlock()
		return
	}
	s.activeResponse = true
	s.mu.Unlock()

	s.forwardUpstream(ctx, []byte(`{"type":"response.create"}`))
}

// emitResponseCreate forwards a response.create unless one is already in
// flight. The invariant is strict: a second create while a response is
// active is dropped, never sent upstream.
func (s *Session) emitResponseCreate(ctx context.Context, raw []byte) {
	s.mu.Lock()
	if s.activeResponse {
		s.mu.Unlock()
		slog.Debug("bridge: dropping response.create while response active", "client_id", s.clientID)
		return
	}
	s.activeResponse = true
	s.mu.Unlock()

	s.forwardUpstream(ctx, raw)
}

// forwardUpstream lazily dials the upstream and writes raw to it.
func (s *Session) forwardUpstream(ctx context.Context, raw []byte) {
	up, err := s.ensureUpstream(ctx)
	if err != nil {
		return
	}
	if err := up.Write(ctx, raw); err != nil {
		slog.Warn("bridge: upstream write failed", "client_id", s.clientID, "error", err)
	}
}

// ── Upstream lifecycle ─────────────────────────────────────────────────────────

// ensureUpstream returns the live upstream socket, dialling it on first use.
// Concurrent callers coalesce onto one dial attempt.
func (s *Session) ensureUpstream(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("bridge: session torn down")
	}
	if s.upstream != nil {
		up := s.upstream
		s.mu.Unlock()
		return up, nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	v, err, _ := s.bridge.connects.Do(s.clientID, func() (any, error) {
		return s.dialWithBackoff(ctx)
	})
	if err != nil {
		s.sendClientError(ctx, "server_error", "could not reach the speech service, please refresh and try again")
		s.cleanup()
		return nil, err
	}
	return v.(Conn), nil
}

// dialWithBackoff dials the upstream with capped exponential backoff, adopts
// the socket and starts its read loop.
func (s *Session) dialWithBackoff(ctx context.Context) (Conn, error) {
	// Re-check under the single-flight: a coalesced caller may arrive after
	// the winner already adopted a socket.
	s.mu.Lock()
	if s.upstream != nil {
		up := s.upstream
		s.mu.Unlock()
		return up, nil
	}
	s.mu.Unlock()

	backoff := s.bridge.dialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.bridge.maxDialAttempts; attempt++ {
		s.mu.Lock()
		s.reconnectAttempts = attempt
		s.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(ctx, s.bridge.dialTimeout)
		conn, err := s.bridge.dial(dialCtx)
		cancel()
		if err == nil {
			if err := s.adoptUpstream(conn); err != nil {
				return nil, err
			}
			return conn, nil
		}
		lastErr = err

		slog.Warn("bridge: upstream dial failed",
			"client_id", s.clientID,
			"attempt", attempt,
			"max_attempts", s.bridge.maxDialAttempts,
			"backoff", backoff,
			"error", err,
		)

		if attempt == s.bridge.maxDialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("bridge: upstream dial exhausted %d attempts: %w", s.bridge.maxDialAttempts, lastErr)
}

// adoptUpstream installs conn as the session's upstream and starts reading
// from it. A session torn down while the dial was in flight refuses the
// socket and closes it so it cannot leak.
func (s *Session) adoptUpstream(conn Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		return fmt.Errorf("bridge: session torn down during dial")
	}
	s.upstream = conn
	s.state = StateReady
	s.reconnectAttempts = 0
	s.mu.Unlock()

	s.bridge.metrics.ActiveUpstreams.Add(s.ctx, 1)
	go s.readUpstream(conn)
	return nil
}

// readUpstream forwards upstream frames to the client until the socket dies
// or is swapped out by a renewal.
func (s *Session) readUpstream(conn Conn) {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			current := s.upstream == conn
			closed := s.closed
			s.mu.Unlock()
			if closed || !current || s.ctx.Err() != nil {
				// Swapped out by renewal or torn down; nothing to report.
				return
			}
			slog.Warn("bridge: upstream read failed", "client_id", s.clientID, "error", err)
			s.sendClientError(s.ctx, "server_error", "lost connection to the speech service")
			s.cleanup()
			return
		}
		s.handleUpstreamFrame(s.ctx, data)
	}
}

func (s *Session) handleUpstreamFrame(ctx context.Context, data []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	s.bridge.metrics.RecordBridgeFrame(ctx, "upstream", env.Type)

	switch env.Type {
	case "response.created":
		s.mu.Lock()
		s.activeResponse = true
		s.mu.Unlock()
		s.forwardClient(ctx, data)

	case "response.done":
		s.mu.Lock()
		s.activeResponse = false
		s.mu.Unlock()
		s.forwardClient(ctx, data)

	case "response.function_call_arguments.done":
		s.handleToolCall(ctx, env)
		s.forwardClient(ctx, data)

	case "input_audio_buffer.speech_started", "input_audio_buffer.speech_stopped":
		slog.Debug("bridge: speech activity", "client_id", s.clientID, "type", env.Type)
		s.forwardClient(ctx, data)

	case "error":
		if env.Error != nil && env.Error.Code == "session_expired" {
			go s.renew("session_expired")
			return
		}
		// An upstream error aborts any in-flight response; clear the flag so
		// the next commit can trigger a fresh response.create.
		s.mu.Lock()
		s.activeResponse = false
		s.mu.Unlock()
		s.forwardClient(ctx, data)

	default:
		// session.created, response.audio.delta, response.audio.done,
		// conversation.item.created and everything else pass through.
		s.forwardClient(ctx, data)
	}
}

func (s *Session) forwardClient(ctx context.Context, data []byte) {
	if err := s.client.Write(ctx, data); err != nil {
		slog.Debug("bridge: client write failed", "client_id", s.clientID, "error", err)
	}
}

// ── Tool calls ─────────────────────────────────────────────────────────────────

// handleToolCall routes a completed function call through the assistant's
// action handlers, then feeds the output back and asks for the next response.
func (s *Session) handleToolCall(ctx context.Context, env frameEnvelope) {
	output := s.executeTool(ctx, env)

	item, err := json.Marshal(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": env.CallID,
			"output":  output,
		},
	})
	if err != nil {
		return
	}
	s.forwardUpstream(ctx, item)

	s.mu.Lock()
	s.activeResponse = true
	s.mu.Unlock()
	s.forwardUpstream(ctx, []byte(`{"type":"response.create"}`))
}

func (s *Session) executeTool(ctx context.Context, env frameEnvelope) string {
	if s.bridge.tools == nil {
		s.sendClientError(ctx, "server_error", "tool calls are not available")
		return `{"error":"tool calls are not available"}`
	}

	result, err := s.bridge.tools.ExecuteTool(ctx, s.userID, env.Name, env.Arguments)
	if err != nil {
		slog.Warn("bridge: tool call failed", "client_id", s.clientID, "tool", env.Name, "error", err)
		s.sendClientError(ctx, "server_error", fmt.Sprintf("tool %q failed: %s", env.Name, err))
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return `{"error":"failed to encode tool result"}`
	}
	return string(data)
}

// ── Renewal and teardown ───────────────────────────────────────────────────────

// sendWarning notifies the client that the upstream session is approaching
// its limit.
func (s *Session) sendWarning() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	remaining := s.bridge.renewAfter - s.bridge.warnAfter
	s.mu.Unlock()

	data, err := json.Marshal(map[string]any{
		"type":          "session.warning",
		"timeRemaining": remaining.Milliseconds(),
	})
	if err != nil {
		return
	}
	s.forwardClient(s.ctx, data)
}

// renew replaces the upstream socket while preserving the client socket.
// Triggered by the renewal timer or an upstream session_expired error.
func (s *Session) renew(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateRenewing
	old := s.upstream
	s.upstream = nil
	config := s.lastConfig
	s.mu.Unlock()

	slog.Info("bridge: renewing upstream session", "client_id", s.clientID, "reason", reason)

	v, err, _ := s.bridge.connects.Do(s.clientID, func() (any, error) {
		return s.dialWithBackoff(s.ctx)
	})
	if err != nil {
		slog.Error("bridge: session renewal failed", "client_id", s.clientID, "error", err)
		s.sendClientError(s.ctx, "server_error", "could not renew the speech session, please refresh")
		s.cleanup()
		return
	}
	conn := v.(Conn)

	if old != nil {
		_ = old.Close(websocket.StatusNormalClosure, "session renewed")
		s.bridge.metrics.ActiveUpstreams.Add(s.ctx, -1)
	}

	// The replacement socket needs the session configuration again.
	if config != nil {
		if data, err := json.Marshal(map[string]any{"type": "session.update", "session": config}); err == nil {
			if werr := conn.Write(s.ctx, data); werr != nil {
				slog.Warn("bridge: reconfigure after renewal failed", "client_id", s.clientID, "error", werr)
			}
		}
	}

	s.mu.Lock()
	s.startedAt = s.bridge.now()
	s.activeResponse = false
	if s.warnTimer != nil {
		s.warnTimer.Reset(s.bridge.warnAfter)
	}
	if s.renewTimer != nil {
		s.renewTimer.Reset(s.bridge.renewAfter)
	}
	s.mu.Unlock()

	s.bridge.metrics.SessionRenewals.Add(s.ctx, 1)

	data, err := json.Marshal(map[string]any{
		"type":      "session.renewed",
		"timestamp": s.bridge.now().UnixMilli(),
	})
	if err == nil {
		s.forwardClient(s.ctx, data)
	}
}

// cleanup tears the session down. Idempotent: the first caller wins, later
// calls return immediately.
func (s *Session) cleanup() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateTornDown
	up := s.upstream
	s.upstream = nil
	active := s.activeResponse
	s.activeResponse = false
	s.reconnectAttempts = 0
	if s.warnTimer != nil {
		s.warnTimer.Stop()
	}
	if s.renewTimer != nil {
		s.renewTimer.Stop()
	}
	s.mu.Unlock()

	if up != nil {
		if active {
			// Abandon any in-flight response before closing.
			_ = up.Write(context.Background(), []byte(`{"type":"response.cancel"}`))
		}
		_ = up.Close(websocket.StatusNormalClosure, "session closed")
		s.bridge.metrics.ActiveUpstreams.Add(context.Background(), -1)
	}

	s.cancel()
	s.bridge.remove(s)
}

func (s *Session) sendClientError(ctx context.Context, errType, message string) {
	data, err := json.Marshal(errorFrame{
		Type:  "error",
		Error: errorDetail{Type: errType, Message: message},
	})
	if err != nil {
		return
	}
	s.forwardClient(ctx, data)
}
