// Command vibejournal is the main entry point for the VibeJournal backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/api/option"

	"github.com/MrWong99/vibejournal/internal/app"
	"github.com/MrWong99/vibejournal/internal/config"
	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/internal/resilience"
	"github.com/MrWong99/vibejournal/pkg/audio"
	"github.com/MrWong99/vibejournal/pkg/audio/file"
	audios3 "github.com/MrWong99/vibejournal/pkg/audio/s3"
	"github.com/MrWong99/vibejournal/pkg/provider/llm"
	"github.com/MrWong99/vibejournal/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/vibejournal/pkg/provider/llm/openai"
	"github.com/MrWong99/vibejournal/pkg/provider/push"
	"github.com/MrWong99/vibejournal/pkg/provider/push/fcm"
	"github.com/MrWong99/vibejournal/pkg/provider/push/logsender"
	"github.com/MrWong99/vibejournal/pkg/provider/push/sns"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
	googlesentiment "github.com/MrWong99/vibejournal/pkg/provider/sentiment/google"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment/llmscore"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
	"github.com/MrWong99/vibejournal/pkg/provider/stt/deepgram"
	googlestt "github.com/MrWong99/vibejournal/pkg/provider/stt/google"
	oastt "github.com/MrWong99/vibejournal/pkg/provider/stt/openai"
	"github.com/MrWong99/vibejournal/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vibejournal: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vibejournal: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, &level))

	slog.Info("vibejournal starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"store", cfg.Store.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ReminderTimeChanged {
			if err := application.SetReminderTime(d.NewReminderTime); err != nil {
				slog.Error("failed to apply reminder time", "err", err)
			}
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("configuration changes require a restart", "sections", d.RestartRequired)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go watcher.Run(ctx)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	code := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("google", func(ctx context.Context, entry config.ProviderEntry, _ config.Deps) (stt.Provider, error) {
		var opts []googlestt.Option
		if entry.Model != "" {
			opts = append(opts, googlestt.WithModel(entry.Model))
		}
		if v, ok := entry.Options["punctuation"].(bool); ok {
			opts = append(opts, googlestt.WithPunctuation(v))
		}
		return googlestt.New(ctx, opts, googleClientOptions(entry)...)
	})

	reg.RegisterSTT("whisper", func(_ context.Context, entry config.ProviderEntry, deps config.Deps) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, deps.Audio, opts...)
	})

	reg.RegisterSTT("openai", func(_ context.Context, entry config.ProviderEntry, deps config.Deps) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(entry.APIKey, deps.Audio, opts...)
	})

	reg.RegisterSTT("deepgram", func(_ context.Context, entry config.ProviderEntry, deps config.Deps) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, deps.Audio, opts...)
	})

	// ── Sentiment ─────────────────────────────────────────────────────────────

	reg.RegisterSentiment("google", func(ctx context.Context, entry config.ProviderEntry, _ config.Deps) (sentiment.Provider, error) {
		var opts []googlesentiment.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, googlesentiment.WithLanguage(lang))
		}
		return googlesentiment.New(ctx, opts, googleClientOptions(entry)...)
	})

	// llm scores sentiment with the configured LLM provider.
	reg.RegisterSentiment("llm", func(_ context.Context, _ config.ProviderEntry, deps config.Deps) (sentiment.Provider, error) {
		return llmscore.New(deps.LLM)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(_ context.Context, entry config.ProviderEntry, _ config.Deps) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining any-llm backends share the same pattern: optional APIKey
	// + optional BaseURL.
	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(providerName, func(_ context.Context, entry config.ProviderEntry, _ config.Deps) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(_ context.Context, entry config.ProviderEntry, _ config.Deps) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Push ──────────────────────────────────────────────────────────────────

	reg.RegisterPush("fcm", func(ctx context.Context, entry config.ProviderEntry, _ config.Deps) (push.Sender, error) {
		return fcm.New(ctx, optString(entry.Options, "project_id"), googleClientOptions(entry)...)
	})

	reg.RegisterPush("sns", func(ctx context.Context, entry config.ProviderEntry, _ config.Deps) (push.Sender, error) {
		var opts []sns.Option
		if n := optInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, sns.WithConcurrency(n))
		}
		return sns.New(ctx, optString(entry.Options, "region"), optString(entry.Options, "platform_arn"), opts...)
	})

	reg.RegisterPush("log", func(context.Context, config.ProviderEntry, config.Deps) (push.Sender, error) {
		return logsender.New(slog.Default()), nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Entries with fallbacks are wrapped in circuit-breaking fallback groups.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				metrics.RecordBreakerTransition(name, to.String())
			},
		},
	}
	deps := config.Deps{Audio: buildAudio(ctx, cfg.Providers.Audio)}

	// LLM first: llm-scored sentiment depends on it.
	if entry := cfg.Providers.LLM; entry.Name != "" {
		p, err := reg.CreateLLM(ctx, entry, deps)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		if entry.Fallback != nil {
			fb := resilience.NewLLMFallback(p, "llm/"+entry.Name, fbCfg)
			for e := entry.Fallback; e != nil; e = e.Fallback {
				alt, err := reg.CreateLLM(ctx, *e, deps)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", e.Name, err)
				}
				fb.AddFallback("llm/"+e.Name, alt)
			}
			p = fb
		}
		ps.LLM = p
		deps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		p, err := reg.CreateSTT(ctx, entry, deps)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		trackCloser(ps, p)
		if entry.Fallback != nil {
			fb := resilience.NewSTTFallback(p, "stt/"+entry.Name, fbCfg)
			for e := entry.Fallback; e != nil; e = e.Fallback {
				alt, err := reg.CreateSTT(ctx, *e, deps)
				if err != nil {
					return nil, fmt.Errorf("create stt fallback %q: %w", e.Name, err)
				}
				trackCloser(ps, alt)
				fb.AddFallback("stt/"+e.Name, alt)
			}
			p = fb
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	if entry := cfg.Providers.Sentiment; entry.Name != "" {
		p, err := reg.CreateSentiment(ctx, entry, deps)
		if err != nil {
			return nil, fmt.Errorf("create sentiment provider %q: %w", entry.Name, err)
		}
		trackCloser(ps, p)
		if entry.Fallback != nil {
			fb := resilience.NewSentimentFallback(p, "sentiment/"+entry.Name, fbCfg)
			for e := entry.Fallback; e != nil; e = e.Fallback {
				alt, err := reg.CreateSentiment(ctx, *e, deps)
				if err != nil {
					return nil, fmt.Errorf("create sentiment fallback %q: %w", e.Name, err)
				}
				trackCloser(ps, alt)
				fb.AddFallback("sentiment/"+e.Name, alt)
			}
			p = fb
		}
		ps.Sentiment = p
		slog.Info("provider created", "kind", "sentiment", "name", entry.Name)
	}

	if entry := cfg.Providers.Push; entry.Name != "" {
		p, err := reg.CreatePush(ctx, entry, deps)
		if err != nil {
			return nil, fmt.Errorf("create push provider %q: %w", entry.Name, err)
		}
		ps.Push = p
		slog.Info("provider created", "kind", "push", "name", entry.Name)
	}

	return ps, nil
}

// buildAudio routes audio URIs to the enabled sources. Google transcription
// reads gs:// objects itself and needs none of them.
func buildAudio(ctx context.Context, cfg config.AudioConfig) audio.Source {
	r := audio.NewRouter()
	if cfg.FileRoot != "" {
		r.Handle("file", &file.Source{Root: cfg.FileRoot})
		slog.Info("audio source enabled", "scheme", "file", "root", cfg.FileRoot)
	}
	if cfg.S3 {
		src, err := audios3.New(ctx, cfg.S3Region)
		if err != nil {
			slog.Warn("s3 audio source unavailable", "err", err)
		} else {
			r.Handle("s3", src)
			slog.Info("audio source enabled", "scheme", "s3")
		}
	}
	return r
}

// trackCloser registers v's Close method with the application if it has one.
func trackCloser(ps *app.Providers, v any) {
	if c, ok := v.(interface{ Close() error }); ok {
		ps.Closers = append(ps.Closers, c.Close)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// googleClientOptions turns the credentials_file option into client options.
// Without it the Google clients use Application Default Credentials.
func googleClientOptions(entry config.ProviderEntry) []option.ClientOption {
	var opts []option.ClientOption
	if f := optString(entry.Options, "credentials_file"); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	if entry.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(entry.BaseURL))
	}
	if entry.APIKey != "" {
		opts = append(opts, option.WithAPIKey(entry.APIKey))
	}
	return opts
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	n, _ := opts[key].(int)
	return n
}

// optDuration parses a Go duration string such as "90s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
