// Package bridge proxies realtime audio between a client WebSocket and the
// Speech Model Service.
//
// Each client gets a per-session two-socket proxy: frames flow through
// opaquely in both directions except for the handful of types the bridge
// interprets (session configuration, response lifecycle, tool calls, session
// expiry). The upstream socket is dialled lazily on the first frame that
// needs it, renewed on a timer before the service's session limit, and
// guarded by capped exponential backoff plus a single-flight dial so
// concurrent frames coalesce onto one connection attempt.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/mirevald/daybook/internal/observe"
)

const (
	defaultWarningAfter = 50 * time.Minute
	defaultRenewalAfter = 55 * time.Minute

	defaultDialTimeout     = 10 * time.Second
	defaultDialBackoff     = time.Second
	defaultMaxDialAttempts = 3
)

// Conn is the minimal socket surface the bridge needs from either end.
// [WrapConn] adapts a live WebSocket; tests substitute in-memory fakes.
type Conn interface {
	// Read blocks until the next message arrives or ctx is done.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one text message.
	Write(ctx context.Context, data []byte) error

	// Close closes the socket with the given status code. Idempotent
	// implementations are expected; the bridge may close twice on teardown.
	Close(code websocket.StatusCode, reason string) error
}

// Dialer establishes one upstream connection to the speech service.
type Dialer func(ctx context.Context) (Conn, error)

// ToolDispatcher executes a calendar tool call on behalf of a user.
// *assistant.Dispatcher satisfies this interface.
type ToolDispatcher interface {
	ExecuteTool(ctx context.Context, userID, name, argsJSON string) (map[string]any, error)
}

// Bridge owns every live audio session. Safe for concurrent use.
type Bridge struct {
	dial    Dialer
	tools   ToolDispatcher
	metrics *observe.Metrics
	now     func() time.Time

	warnAfter  time.Duration
	renewAfter time.Duration

	dialTimeout     time.Duration
	dialBackoff     time.Duration
	maxDialAttempts int

	limiter *rateLimiter

	// connects coalesces concurrent upstream dials per client.
	connects singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithToolDispatcher wires tool calls from the speech service into the
// assistant's action handlers.
func WithToolDispatcher(t ToolDispatcher) Option {
	return func(b *Bridge) { b.tools = t }
}

// WithMetrics replaces the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithRateLimit sets the per-key connection budget per rolling minute.
func WithRateLimit(perMinute int) Option {
	return func(b *Bridge) { b.limiter = newRateLimiter(perMinute, b.now) }
}

// WithSessionTimers overrides the warning and renewal timer durations.
func WithSessionTimers(warnAfter, renewAfter time.Duration) Option {
	return func(b *Bridge) {
		b.warnAfter = warnAfter
		b.renewAfter = renewAfter
	}
}

// WithDialPolicy overrides the upstream dial timeout, initial backoff and
// attempt cap.
func WithDialPolicy(timeout, backoff time.Duration, maxAttempts int) Option {
	return func(b *Bridge) {
		if timeout > 0 {
			b.dialTimeout = timeout
		}
		if backoff > 0 {
			b.dialBackoff = backoff
		}
		if maxAttempts > 0 {
			b.maxDialAttempts = maxAttempts
		}
	}
}

// New creates a Bridge that dials upstreams with dial.
func New(dial Dialer, opts ...Option) *Bridge {
	b := &Bridge{
		dial:            dial,
		now:             time.Now,
		warnAfter:       defaultWarningAfter,
		renewAfter:      defaultRenewalAfter,
		dialTimeout:     defaultDialTimeout,
		dialBackoff:     defaultDialBackoff,
		maxDialAttempts: defaultMaxDialAttempts,
		sessions:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	if b.limiter == nil {
		b.limiter = newRateLimiter(defaultRateCapacity, b.now)
	}
	return b
}

// SpeechDialer returns a Dialer for the speech service's realtime WebSocket
// endpoint, authenticated with apiKey.
func SpeechDialer(url, apiKey string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{
				"Authorization": []string{"Bearer " + apiKey},
				"OpenAI-Beta":   []string{"realtime=v1"},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("bridge: dial speech service: %w", err)
		}
		return WrapConn(conn), nil
	}
}

// wsConn adapts *websocket.Conn to [Conn].
type wsConn struct {
	conn *websocket.Conn
}

// WrapConn adapts a live WebSocket connection to the bridge's [Conn] surface.
func WrapConn(c *websocket.Conn) Conn {
	return &wsConn{conn: c}
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(code websocket.StatusCode, reason string) error {
	return w.conn.Close(code, reason)
}

// HandleClient runs one client's session until the client socket closes or
// the session is torn down. clientID must be unique per connection (the
// remote address works); userID may be empty for anonymous clients, in which
// case rate limiting falls back to clientID.
func (b *Bridge) HandleClient(ctx context.Context, clientID, userID string, client Conn) error {
	key := userID
	if key == "" {
		key = clientID
	}
	if !b.limiter.allow(key) {
		b.metrics.RateLimitHits.Add(ctx, 1)
		_ = client.Close(websocket.StatusPolicyViolation, "rate limit exceeded")
		return fmt.Errorf("bridge: rate limit exceeded for %q", key)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		bridge:    b,
		clientID:  clientID,
		userID:    userID,
		client:    client,
		state:     StateIdle,
		startedAt: b.now(),
		ctx:       sctx,
		cancel:    cancel,
	}
	s.warnTimer = time.AfterFunc(b.warnAfter, s.sendWarning)
	s.renewTimer = time.AfterFunc(b.renewAfter, func() { s.renew("timer") })

	b.mu.Lock()
	if old, ok := b.sessions[clientID]; ok {
		b.mu.Unlock()
		old.cleanup()
		b.mu.Lock()
	}
	b.sessions[clientID] = s
	b.mu.Unlock()
	b.metrics.ActiveSessions.Add(ctx, 1)

	defer s.cleanup()

	for {
		data, err := client.Read(sctx)
		if err != nil {
			if sctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("bridge: client read: %w", err)
		}
		s.handleClientFrame(sctx, data)
	}
}

// remove unregisters a session; called from Session.cleanup exactly once.
func (b *Bridge) remove(s *Session) {
	b.mu.Lock()
	if b.sessions[s.clientID] == s {
		delete(b.sessions, s.clientID)
	}
	b.mu.Unlock()
	b.metrics.ActiveSessions.Add(context.Background(), -1)
}

// Close tears down every live session. Used on shutdown.
func (b *Bridge) Close() error {
	b.mu.Lock()
	live := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		live = append(live, s)
	}
	b.mu.Unlock()

	for _, s := range live {
		s.cleanup()
	}
	return nil
}
