// Package app wires all Daybook subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in reverse order.
//
// For testing, inject mock implementations via functional options
// (WithCalendarStore, WithProvider, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/mirevald/daybook/internal/assistant"
	"github.com/mirevald/daybook/internal/assistant/responder"
	"github.com/mirevald/daybook/internal/bridge"
	"github.com/mirevald/daybook/internal/config"
	"github.com/mirevald/daybook/internal/feedback"
	"github.com/mirevald/daybook/internal/health"
	"github.com/mirevald/daybook/internal/httpapi"
	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/internal/tools"
	"github.com/mirevald/daybook/pkg/provider/llm"
	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/store/postgres"
)

// activeUserWindow bounds how far back the pattern-learning job looks when
// deciding which users to scan. Matches the event window the miner itself
// uses.
const activeUserWindow = 30 * 24 * time.Hour

// UserLister enumerates users with recent activity. *postgres.Store satisfies
// it; tests inject a stub.
type UserLister interface {
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Injected test doubles, nil in production.
	calendar store.CalendarStore
	memStore store.MemoryStore
	provider llm.Provider
	dialer   bridge.Dialer
	users    UserLister

	// Subsystems, initialised in New and torn down in Shutdown.
	db         *postgres.Store
	memories   *memory.Service
	ingestor   *feedback.Ingestor
	registry   *tools.Registry
	dispatcher *assistant.Dispatcher
	bridge     *bridge.Bridge
	health     *health.Handler
	httpServer *http.Server
	jobs       *cron.Cron

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCalendarStore injects a calendar store instead of connecting to
// PostgreSQL. Must be paired with [WithMemoryStore].
func WithCalendarStore(s store.CalendarStore) Option {
	return func(a *App) { a.calendar = s }
}

// WithMemoryStore injects a memory store instead of connecting to PostgreSQL.
func WithMemoryStore(s store.MemoryStore) Option {
	return func(a *App) { a.memStore = s }
}

// WithProvider injects the language model provider instead of building one
// from the config registry.
func WithProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithSpeechDialer injects the upstream speech dialer used by the audio
// bridge.
func WithSpeechDialer(d bridge.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithUserLister injects the user enumeration used by the pattern-learning
// job.
func WithUserLister(l UserLister) Option {
	return func(a *App) { a.users = l }
}

// toolBinder defers the dispatcher reference so the tool registry can be
// built before the dispatcher that executes its calendar tools. The two
// depend on each other: the registry's calendar tools call into the
// dispatcher, and the dispatcher's fallback responder consults the registry.
type toolBinder struct{ d *assistant.Dispatcher }

var _ tools.CalendarExecutor = (*toolBinder)(nil)

func (b *toolBinder) ExecuteTool(ctx context.Context, userID, name, argsJSON string) (map[string]any, error) {
	if b.d == nil {
		return nil, errors.New("app: dispatcher not initialised")
	}
	return b.d.ExecuteTool(ctx, userID, name, argsJSON)
}

// New wires the full application from cfg. On error, any subsystems already
// created are closed before returning.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.init(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// 1. Persistence. A single postgres.Store backs both store contracts
	// unless test doubles were injected.
	if a.calendar == nil || a.memStore == nil {
		db, err := postgres.NewStore(ctx, a.cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("app: connect database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, func() error {
			db.Close()
			return nil
		})
		if a.calendar == nil {
			a.calendar = db
		}
		if a.memStore == nil {
			a.memStore = db
		}
		if a.users == nil {
			a.users = db
		}
	}

	// 2. Core services.
	a.memories = memory.New(a.memStore, a.calendar)
	a.ingestor = feedback.New(a.memStore, a.memories)

	// 3. Language model provider and responder. Without a configured
	// provider the assistant still runs, fast path only.
	if a.provider == nil && a.cfg.Assistant.Provider.Name != "" {
		p, err := config.DefaultRegistry().Create(a.cfg.Assistant.Provider)
		if err != nil {
			return fmt.Errorf("app: create llm provider: %w", err)
		}
		a.provider = p
	}

	// 4. Tool registry. The binder breaks the registry/dispatcher cycle.
	binder := &toolBinder{}
	a.registry = tools.NewRegistry()
	a.closers = append(a.closers, a.registry.Close)
	if err := tools.RegisterCalendar(a.registry, binder); err != nil {
		return fmt.Errorf("app: register calendar tools: %w", err)
	}
	for _, srv := range a.cfg.MCP.Servers {
		if err := a.registry.RegisterServer(ctx, srv.ToolServer()); err != nil {
			return fmt.Errorf("app: register tool server %q: %w", srv.Name, err)
		}
	}

	// 5. Dispatcher.
	var dispatchOpts []assistant.Option
	if a.provider != nil {
		r := responder.New(a.provider,
			responder.WithTools(a.registry),
			responder.WithTemperature(a.cfg.Assistant.Temperature),
			responder.WithMaxTokens(a.cfg.Assistant.MaxTokens),
		)
		dispatchOpts = append(dispatchOpts, assistant.WithResponder(r))
	}
	a.dispatcher = assistant.New(a.calendar, a.memories, dispatchOpts...)
	binder.d = a.dispatcher

	// 6. Audio bridge, only when an upstream speech service is configured.
	if dialer := a.speechDialer(); dialer != nil {
		a.bridge = bridge.New(dialer,
			bridge.WithToolDispatcher(a.dispatcher),
			bridge.WithRateLimit(a.cfg.Speech.RateLimitPerMinute),
			bridge.WithSessionTimers(
				time.Duration(a.cfg.Speech.SessionWarningMinutes)*time.Minute,
				time.Duration(a.cfg.Speech.SessionRenewalMinutes)*time.Minute,
			),
		)
		a.closers = append(a.closers, a.bridge.Close)
	}

	// 7. Health probes.
	var checkers []health.Checker
	if a.db != nil {
		checkers = append(checkers, health.Database(a.db))
	}
	a.health = health.New(checkers...)

	// 8. Maintenance jobs.
	if err := a.scheduleJobs(); err != nil {
		return fmt.Errorf("app: schedule jobs: %w", err)
	}

	// 9. HTTP server.
	serverOpts := []httpapi.Option{
		httpapi.WithHealth(a.health),
		httpapi.WithMetricsHandler(promhttp.Handler()),
	}
	if a.bridge != nil {
		serverOpts = append(serverOpts, httpapi.WithBridge(
			a.bridge,
			a.cfg.Speech.APIKey != "",
			a.cfg.Speech.MaxConnections,
		))
	}
	api := httpapi.New(a.dispatcher, a.memories, a.ingestor, serverOpts...)
	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

// speechDialer resolves the upstream dialer: the injected one, or one built
// from the speech config, or nil when no upstream is configured.
func (a *App) speechDialer() bridge.Dialer {
	if a.dialer != nil {
		return a.dialer
	}
	if a.cfg.Speech.URL == "" {
		return nil
	}
	return bridge.SpeechDialer(a.cfg.Speech.URL, a.cfg.Speech.APIKey)
}

// scheduleJobs registers the memory maintenance crons: cleanup, pattern
// learning, and cache flush. Empty schedules disable the matching job.
func (a *App) scheduleJobs() error {
	a.jobs = cron.New()

	type job struct {
		spec string
		name string
		run  func(context.Context)
	}
	jobs := []job{
		{a.cfg.Memory.CleanupSchedule, "memory-cleanup", a.runCleanup},
		{a.cfg.Memory.LearnSchedule, "pattern-learning", a.runPatternLearning},
		{a.cfg.Memory.CacheFlushSchedule, "cache-flush", func(context.Context) { a.memories.FlushCaches() }},
	}

	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		j := j
		_, err := a.jobs.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			j.run(ctx)
		})
		if err != nil {
			return fmt.Errorf("job %q: %w", j.name, err)
		}
	}
	return nil
}

func (a *App) runCleanup(ctx context.Context) {
	n, err := a.memories.CleanupOnce(ctx)
	if err != nil {
		slog.Error("app: memory cleanup failed", "error", err)
		return
	}
	slog.Info("app: memory cleanup complete", "deleted", n)
}

func (a *App) runPatternLearning(ctx context.Context) {
	if a.users == nil {
		return
	}
	users, err := a.users.ListActiveUsers(ctx, time.Now().Add(-activeUserWindow))
	if err != nil {
		slog.Error("app: pattern learning: list users failed", "error", err)
		return
	}
	for _, id := range users {
		if err := a.memories.LearnFromPatterns(ctx, id); err != nil {
			slog.Error("app: pattern learning failed", "user", id, "error", err)
		}
	}
	slog.Info("app: pattern learning complete", "users", len(users))
}

// Handler returns the full HTTP handler tree. Exposed for tests that serve
// the app through httptest.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the maintenance jobs and serves HTTP until ctx is cancelled or
// the listener fails. It always calls Shutdown before returning.
func (a *App) Run(ctx context.Context) error {
	a.jobs.Start()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("app: http server listening",
			"addr", a.cfg.Server.ListenAddr,
			"tls", a.cfg.Server.TLS != nil,
		)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("app: shutdown signal received")
		return a.Shutdown(context.Background())
	case err, ok := <-errCh:
		serveErr := error(nil)
		if ok {
			serveErr = fmt.Errorf("app: http server: %w", err)
		}
		return errors.Join(serveErr, a.Shutdown(context.Background()))
	}
}

// Shutdown stops the HTTP server gracefully, halts the cron jobs, and closes
// all subsystems in reverse initialisation order. Safe to call more than
// once; only the first call does work.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		var errs []error
		if a.httpServer != nil {
			if e := a.httpServer.Shutdown(shutdownCtx); e != nil {
				errs = append(errs, fmt.Errorf("app: http shutdown: %w", e))
			}
		}
		if a.jobs != nil {
			stopped := a.jobs.Stop()
			select {
			case <-stopped.Done():
			case <-shutdownCtx.Done():
				errs = append(errs, errors.New("app: timed out waiting for jobs"))
			}
		}
		errs = append(errs, a.closeAll())
		err = errors.Join(errs...)
		slog.Info("app: shutdown complete")
	})
	return err
}

// closeAll runs the registered closers in reverse order and joins their
// errors.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if e := a.closers[i](); e != nil {
			errs = append(errs, e)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
