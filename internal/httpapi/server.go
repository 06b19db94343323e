// Package httpapi exposes the assistant over HTTP: the text chat endpoint,
// memory CRUD and export/import, feedback ingestion, audio bridge status and
// the realtime audio WebSocket, plus the health and metrics probes.
//
// Handler wiring follows one rule: transports never see raw errors. Every
// handler maps internal failures to the fixed client-facing envelopes and
// logs the detail server-side.
package httpapi

import (
	"net/http"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/internal/bridge"
	"github.com/mirevald/daybook/internal/feedback"
	"github.com/mirevald/daybook/internal/health"
	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/internal/observe"
)

// defaultUserID is used when a request carries no user identity.
const defaultUserID = "default"

// audioWebSocketPath is where audio clients connect.
const audioWebSocketPath = "/api/realtime-audio"

// Server holds the handler dependencies. Construct with [New]; the zero
// value is not usable.
type Server struct {
	dispatcher *assistant.Dispatcher
	memories   *memory.Service
	feedback   *feedback.Ingestor
	bridge     *bridge.Bridge
	health     *health.Handler
	metricsH   http.Handler
	metrics    *observe.Metrics

	upstreamConfigured bool
	maxConnections     int
}

// Option customizes a Server.
type Option func(*Server)

// WithBridge enables the audio endpoints. upstreamConfigured reports whether
// a speech service API key is present; maxConnections is the per-key rate
// budget surfaced in the status payload.
func WithBridge(b *bridge.Bridge, upstreamConfigured bool, maxConnections int) Option {
	return func(s *Server) {
		s.bridge = b
		s.upstreamConfigured = upstreamConfigured
		s.maxConnections = maxConnections
	}
}

// WithHealth installs the health probe handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler installs the Prometheus scrape handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsH = h }
}

// WithMetrics replaces the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server for the given core services.
func New(d *assistant.Dispatcher, m *memory.Service, f *feedback.Ingestor, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		memories:   m,
		feedback:   f,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Routes returns the full handler tree wrapped in the observability
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/assistant/chat", s.handleChat)

	mux.HandleFunc("GET /api/assistant/memory", s.handleMemoryGet)
	mux.HandleFunc("POST /api/assistant/memory", s.handleMemoryPost)
	mux.HandleFunc("PUT /api/assistant/memory", s.handleMemoryPut)
	mux.HandleFunc("DELETE /api/assistant/memory", s.handleMemoryDelete)
	mux.HandleFunc("GET /api/assistant/memory/export", s.handleMemoryExport)
	mux.HandleFunc("POST /api/assistant/memory/import", s.handleMemoryImport)

	mux.HandleFunc("POST /api/assistant/feedback", s.handleFeedback)

	mux.HandleFunc("GET /api/assistant/audio/status", s.handleAudioStatus)
	mux.HandleFunc("GET "+audioWebSocketPath, s.handleAudioSocket)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}

	return observe.Middleware(s.metrics)(mux)
}

// userID resolves the acting user: the X-User-ID header, then the userId
// query parameter, then the default.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("userId"); id != "" {
		return id
	}
	return defaultUserID
}
