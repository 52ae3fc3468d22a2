// Package app wires all VibeJournal subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and drives the background loops, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithLocker,
// WithVerifier, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/MrWong99/vibejournal/internal/assistant"
	"github.com/MrWong99/vibejournal/internal/config"
	"github.com/MrWong99/vibejournal/internal/entitlement"
	"github.com/MrWong99/vibejournal/internal/health"
	"github.com/MrWong99/vibejournal/internal/httpapi"
	"github.com/MrWong99/vibejournal/internal/lease"
	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/internal/reminder"
	"github.com/MrWong99/vibejournal/internal/schedule"
	"github.com/MrWong99/vibejournal/internal/vibe"
	"github.com/MrWong99/vibejournal/pkg/provider/llm"
	"github.com/MrWong99/vibejournal/pkg/provider/push"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
	"github.com/MrWong99/vibejournal/pkg/store"
	"github.com/MrWong99/vibejournal/pkg/store/firestore"
	"github.com/MrWong99/vibejournal/pkg/store/memstore"
	"github.com/MrWong99/vibejournal/pkg/store/postgres"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT       stt.Provider
	Sentiment sentiment.Provider
	LLM       llm.Provider
	Push      push.Sender

	// Closers release provider clients. They run during Shutdown after the
	// store has been closed.
	Closers []func() error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	clock     clockwork.Clock

	// Subsystems, initialised in New and torn down in Shutdown.
	store          store.Store
	locker         reminder.Locker
	verifier       entitlement.Verifier
	checkers       []health.Checker
	metricsHandler http.Handler

	runner    *vibe.Runner
	job       *reminder.Job
	daily     *schedule.Daily
	assistant *assistant.Assistant
	purchases *entitlement.Service
	handler   http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening the one named in the config.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLocker injects the reminder run lease.
func WithLocker(l reminder.Locker) Option {
	return func(a *App) { a.locker = l }
}

// WithVerifier injects a purchase verifier and enables the purchase
// endpoint regardless of entitlement.credentials_file.
func WithVerifier(v entitlement.Verifier) Option {
	return func(a *App) { a.verifier = v }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithClock replaces the clock driving the daily reminder trigger.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// Subsystems whose providers are missing are left out: without transcription
// and sentiment providers no recordings are processed, without a push sender
// there is no reminder job, and without an LLM there is no assistant.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		clock:     clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Recording pipeline ────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 3. Reminder job ──────────────────────────────────────────────────
	if err := a.initReminders(); err != nil {
		return nil, fmt.Errorf("app: init reminders: %w", err)
	}

	// ── 4. Purchases ─────────────────────────────────────────────────────
	if err := a.initEntitlements(ctx); err != nil {
		return nil, fmt.Errorf("app: init entitlements: %w", err)
	}

	// ── 5. Assistant ─────────────────────────────────────────────────────
	if providers.LLM != nil {
		a.assistant = assistant.New(providers.LLM, assistant.WithMetrics(a.metrics))
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.checkers = append([]health.Checker{health.Ping("store", a.store)}, a.checkers...)
	a.handler = httpapi.New(httpapi.Deps{
		Health:       health.New(a.checkers...),
		Metrics:      a.metricsHandler,
		Runner:       a.runner,
		Job:          a.job,
		Assistant:    a.assistant,
		Entitlements: a.purchases,
	}).Handler(a.metrics)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured document store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var (
		s   store.Store
		err error
	)
	switch a.cfg.Store.Name {
	case config.StorePostgres:
		s, err = postgres.NewStore(ctx, a.cfg.Store.DSN)
	case config.StoreFirestore:
		cols := a.cfg.Store.Collections
		s, err = firestore.New(ctx, a.cfg.Store.ProjectID, firestore.WithCollections(firestore.Collections{
			Recordings:  cols.Recordings,
			Templates:   cols.Templates,
			Subscribers: cols.Subscribers,
		}))
	case "", config.StoreMemory:
		slog.Warn("using the in-memory store; data is lost on restart")
		s = memstore.New()
	default:
		return fmt.Errorf("unknown store %q", a.cfg.Store.Name)
	}
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	slog.Info("store opened", "name", storeName(a.cfg.Store.Name))
	return nil
}

// initPipeline builds the recording pipeline and its runner.
func (a *App) initPipeline() error {
	if a.providers.STT == nil || a.providers.Sentiment == nil {
		slog.Warn("transcription or sentiment provider missing; recording processing disabled")
		return nil
	}
	pc := a.cfg.Pipeline
	p, err := vibe.New(a.providers.STT, a.providers.Sentiment, a.store,
		vibe.WithAudioURIPrefix(pc.AudioURIPrefix),
		vibe.WithLanguage(pc.Language),
		vibe.WithTranscriptionTimeout(pc.TranscriptionTimeout),
		vibe.WithSentimentTimeout(pc.SentimentTimeout),
		vibe.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.runner = vibe.NewRunner(p, pc.Concurrency)
	return nil
}

// initReminders builds the reminder job, its lease and the daily trigger.
func (a *App) initReminders() error {
	if a.providers.Push == nil {
		slog.Warn("no push provider configured; daily reminders disabled")
		return nil
	}
	rc := a.cfg.Reminders

	if a.locker == nil {
		if rc.Lease.RedisURL != "" {
			l, client, err := lease.Dial(rc.Lease.RedisURL, rc.Lease.TTL)
			if err != nil {
				return err
			}
			a.locker = l
			a.checkers = append(a.checkers, health.Ping("redis", l))
			a.closers = append(a.closers, client.Close)
		} else {
			a.locker = lease.NewLocal()
		}
	}

	seed := rc.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	a.job = reminder.NewJob(
		reminder.NewSelector(a.store, rc.TemplateType, rand.New(rand.NewPCG(seed, seed))),
		reminder.NewResolver(a.store),
		reminder.NewFanOut(a.providers.Push, a.store,
			reminder.WithBatchSize(rc.BatchSize),
			reminder.WithPruneConcurrency(rc.PruneConcurrency),
			reminder.WithFanOutMetrics(a.metrics),
		),
		reminder.WithLocker(a.locker),
		reminder.WithJobMetrics(a.metrics),
	)

	if !rc.Enabled {
		return nil
	}
	at := rc.TimeUTC
	if at == "" {
		at = schedule.DefaultTime
	}
	d, err := schedule.NewDaily(at, func(ctx context.Context) {
		// Job.Run logs and records its own outcome.
		_, _ = a.job.Run(ctx)
	}, schedule.WithClock(a.clock))
	if err != nil {
		return err
	}
	a.daily = d
	return nil
}

// initEntitlements builds the purchase verification service.
func (a *App) initEntitlements(ctx context.Context) error {
	ec := a.cfg.Entitlement
	if a.verifier == nil {
		if ec.CredentialsFile == "" {
			return nil
		}
		var opts []entitlement.PlayOption
		if ec.PackageName != "" {
			opts = append(opts, entitlement.WithPackageName(ec.PackageName))
		}
		v, err := entitlement.NewPlayVerifier(ctx, []option.ClientOption{option.WithCredentialsFile(ec.CredentialsFile)}, opts...)
		if err != nil {
			return err
		}
		a.verifier = v
	}
	a.purchases = entitlement.NewService(a.verifier, a.store)
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving every configured endpoint.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP, watches the store for new recordings and fires the daily
// reminder trigger until ctx is cancelled. It returns ctx.Err() after a
// clean stop, or the first subsystem error.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if a.runner != nil && a.cfg.Pipeline.WatchEnabled() {
		g.Go(func() error { return a.runner.Run(gctx, a.store) })
	}
	if a.daily != nil {
		g.Go(func() error { return a.daily.Run(gctx) })
	}

	slog.Info("app running",
		"pipeline", a.runner != nil,
		"reminders", a.job != nil,
		"daily_trigger", a.daily != nil,
		"assistant", a.assistant != nil,
		"purchases", a.purchases != nil,
	)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// SetReminderTime moves the daily trigger to a new "HH:MM" UTC time. It is
// a no-op when the trigger is disabled.
func (a *App) SetReminderTime(at string) error {
	if a.daily == nil {
		return nil
	}
	if at == "" {
		at = schedule.DefaultTime
	}
	if err := a.daily.SetTime(at); err != nil {
		return fmt.Errorf("app: set reminder time: %w", err)
	}
	slog.Info("daily reminder time changed", "time_utc", at)
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order, followed by the provider
// closers. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		closers := append(a.closers, a.providers.Closers...)
		slog.Info("shutting down", "closers", len(closers))

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func storeName(name string) string {
	if name == "" {
		return config.StoreMemory
	}
	return name
}
