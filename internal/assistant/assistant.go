// Package assistant implements the dispatcher that turns a parsed user
// message into a reply and, when warranted, a calendar side effect.
//
// Every message is first run through the rule-based extractor. High-confidence
// parses with a known intent take the deterministic fast path; everything else
// is delegated to the conversational responder, whose returned action is
// dispatched through the same handler table the fast path uses, so the two
// routes share one side-effect layer. The audio bridge's tool calls resolve
// through that layer as well.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/internal/nlp"
	"github.com/mirevald/daybook/internal/observe"
	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"

	"golang.org/x/sync/errgroup"
)

// fastPathConfidence is the strict lower bound for the deterministic route.
// A parse at exactly this confidence falls back.
const fastPathConfidence = 0.8

// ErrMessageRequired is returned when Process is called with an empty
// message. It is a validation failure, distinguishable from store errors.
var ErrMessageRequired = errors.New("assistant: message is required")

// Source identifies which route produced a reply.
const (
	SourceNLP = "nlp"
	SourceAI  = "ai"
)

// Reply is the outcome of one processed turn.
type Reply struct {
	Intent     types.Intent   `json:"intent"`
	Entities   types.Entities `json:"entities"`
	Response   string         `json:"response"`
	Action     types.Action   `json:"action,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Source     string         `json:"source"`

	// ActionResult is set on the AI route when the responder's action was
	// dispatched through the handler table.
	ActionResult *ActionResult `json:"actionResult,omitempty"`
}

// ResponderRequest is the context handed to the conversational responder.
type ResponderRequest struct {
	UserID    string
	Message   string
	SessionID string

	// UserContext is the top memories per category.
	UserContext map[store.Category][]store.Memory

	// RecentConversations is the session's recent turns, oldest first.
	RecentConversations []store.Conversation

	// Recommendations are slot suggestions mined from behavioral memories.
	Recommendations memory.Recommendations

	// Parsed is what the extractor made of the message, for grounding.
	Parsed nlp.Result
}

// ResponderResult is what the conversational responder decided.
type ResponderResult struct {
	Response string
	Action   types.Action
	Data     map[string]any
	Intent   types.Intent
	Entities types.Entities
}

// Responder is the opaque conversational fallback. Implementations live in
// the responder subpackage; the dispatcher only needs this surface.
type Responder interface {
	Respond(ctx context.Context, req ResponderRequest) (*ResponderResult, error)
}

// Dispatcher routes user turns between the fast path and the responder.
// Safe for concurrent use; turns within one (userID, sessionID) are
// serialized.
type Dispatcher struct {
	parser    *nlp.Extractor
	calendar  store.CalendarStore
	memories  *memory.Service
	responder Responder
	matcher   *eventMatcher
	metrics   *observe.Metrics
	now       func() time.Time

	turnMu sync.Mutex
	turns  map[string]*turnLock
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the wall clock used for "today" resolution.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
		d.parser = nlp.New(nlp.WithClock(now))
	}
}

// WithResponder installs the conversational fallback. Without one, ambiguous
// turns get a generic clarification reply.
func WithResponder(r Responder) Option {
	return func(d *Dispatcher) {
		d.responder = r
	}
}

// WithMetrics replaces the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a dispatcher over the calendar store and memory service.
func New(calendar store.CalendarStore, memories *memory.Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		parser:   nlp.New(),
		calendar: calendar,
		memories: memories,
		matcher:  newEventMatcher(),
		now:      time.Now,
		turns:    make(map[string]*turnLock),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Process handles one user turn. The conversation log is submitted before the
// next turn of the same (userID, sessionID) may begin, but a log failure
// never fails the reply.
func (d *Dispatcher) Process(ctx context.Context, userID, message, sessionID string) (*Reply, error) {
	if message == "" {
		return nil, ErrMessageRequired
	}
	if userID == "" {
		userID = "default"
	}

	unlock := d.lockTurn(userID, sessionID)
	start := d.now()

	parsed := d.parser.Parse(message)
	d.metrics.ParseDuration.Record(ctx, time.Since(start).Seconds())

	var (
		reply *Reply
		err   error
	)
	if parsed.Confidence > fastPathConfidence && parsed.Intent.Known() {
		reply = d.fastPath(ctx, userID, parsed)
	} else {
		reply, err = d.fallbackPath(ctx, userID, message, sessionID, parsed)
	}
	if err != nil {
		unlock()
		d.metrics.RecordDispatch(ctx, SourceAI, string(parsed.Intent), "error", time.Since(start).Seconds())
		return nil, err
	}

	d.metrics.RecordDispatch(ctx, reply.Source, string(reply.Intent), "ok", time.Since(start).Seconds())

	// Submit the log off the reply path; the turn lock is held until the
	// submission completes so per-session order is preserved.
	logCtx := context.WithoutCancel(ctx)
	go func() {
		defer unlock()
		_, logErr := d.memories.StoreConversation(logCtx, userID, message, reply.Response, reply.Intent, reply.Entities, sessionID)
		if logErr != nil {
			slog.Error("assistant: conversation log failed",
				"user_id", userID, "session_id", sessionID, "error", logErr)
		}
	}()
	return reply, nil
}

// lockTurn serializes turns per (userID, sessionID). The returned func
// releases the lock and drops the entry when no turn is waiting on it.
func (d *Dispatcher) lockTurn(userID, sessionID string) func() {
	key := userID + "\x00" + sessionID

	d.turnMu.Lock()
	l := d.turns[key]
	if l == nil {
		l = &turnLock{}
		d.turns[key] = l
	}
	l.refs++
	d.turnMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.turnMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.turns, key)
		}
		d.turnMu.Unlock()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Fast path
// ─────────────────────────────────────────────────────────────────────────────

func (d *Dispatcher) fastPath(ctx context.Context, userID string, parsed nlp.Result) *Reply {
	reply := &Reply{
		Intent:     parsed.Intent,
		Entities:   parsed.Entities,
		Confidence: parsed.Confidence,
		Source:     SourceNLP,
	}

	switch parsed.Intent {
	case types.IntentCreate:
		d.handleCreate(ctx, userID, parsed.Entities, reply)
	case types.IntentQuery:
		d.handleQuery(ctx, userID, parsed.Entities, reply)
	case types.IntentModify, types.IntentDelete:
		d.handleSelection(ctx, userID, parsed.Intent, parsed.Entities, reply)
	}
	return reply
}

// ─────────────────────────────────────────────────────────────────────────────
// Fallback path
// ─────────────────────────────────────────────────────────────────────────────

func (d *Dispatcher) fallbackPath(ctx context.Context, userID, message, sessionID string, parsed nlp.Result) (*Reply, error) {
	if d.responder == nil {
		return &Reply{
			Intent:   parsed.Intent,
			Entities: parsed.Entities,
			Response: "I'm not sure I understood that. Could you rephrase it?",
			Source:   SourceAI,
		}, nil
	}

	req := ResponderRequest{
		UserID:    userID,
		Message:   message,
		SessionID: sessionID,
		Parsed:    parsed,
	}

	// Context assembly is concurrent; each piece is advisory, so individual
	// failures degrade to an empty slot rather than failing the turn.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		summary, err := d.memories.Summary(egCtx, userID, 5)
		if err != nil {
			return fmt.Errorf("assistant: user context: %w", err)
		}
		req.UserContext = summary
		return nil
	})
	eg.Go(func() error {
		turns, err := d.memories.GetConversationHistory(egCtx, userID, sessionID, 10)
		if err != nil {
			return fmt.Errorf("assistant: recent turns: %w", err)
		}
		req.RecentConversations = turns
		return nil
	})
	eg.Go(func() error {
		req.Recommendations = d.memories.GetContextualRecommendations(egCtx, userID, parsed.Intent, parsed.Entities)
		return nil
	})
	if err := eg.Wait(); err != nil {
		slog.Warn("assistant: context assembly degraded", "user_id", userID, "error", err)
	}

	res, err := d.responder.Respond(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("assistant: responder: %w", err)
	}

	reply := &Reply{
		Intent:   res.Intent,
		Entities: res.Entities,
		Response: res.Response,
		Action:   res.Action,
		Data:     res.Data,
		Source:   SourceAI,
	}
	if reply.Intent == "" {
		reply.Intent = parsed.Intent
	}

	if res.Action != "" {
		result, actErr := d.dispatchAction(ctx, userID, res.Action, res.Data)
		if actErr != nil {
			slog.Error("assistant: responder action failed",
				"user_id", userID, "action", res.Action, "error", actErr)
			reply.Response = storeApology
			reply.Action = types.ActionError
			return reply, nil
		}
		reply.ActionResult = result
	}
	return reply, nil
}
