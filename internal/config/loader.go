package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vibejournal/internal/schedule"
	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"google", "whisper", "openai", "deepgram"},
	"sentiment": {"google", "llm"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"push":      {"fcm", "sns", "log"},
}

// Env holds deployment overrides and secrets read from VIBEJOURNAL_*
// variables. Non-empty values replace the corresponding YAML fields.
type Env struct {
	ListenAddr      string `env:"VIBEJOURNAL_LISTEN_ADDR"`
	LogLevel        string `env:"VIBEJOURNAL_LOG_LEVEL"`
	StoreDSN        string `env:"VIBEJOURNAL_STORE_DSN"`
	ProjectID       string `env:"VIBEJOURNAL_PROJECT_ID"`
	STTAPIKey       string `env:"VIBEJOURNAL_STT_API_KEY"`
	SentimentAPIKey string `env:"VIBEJOURNAL_SENTIMENT_API_KEY"`
	LLMAPIKey       string `env:"VIBEJOURNAL_LLM_API_KEY"`
	RedisURL        string `env:"VIBEJOURNAL_REDIS_URL"`
	PlayCredentials string `env:"VIBEJOURNAL_PLAY_CREDENTIALS_FILE"`
	ReminderTime    string `env:"VIBEJOURNAL_REMINDER_TIME"`
}

// Load reads the YAML configuration file at path, overlays the environment
// (including an optional .env file in the working directory) and returns a
// validated [Config].
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// parse decodes data, overlays the environment and validates the result.
func parse(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays VIBEJOURNAL_* variables onto cfg. A nil src reads the
// process environment.
func ApplyEnv(cfg *Config, src env.Source) error {
	var e Env
	if err := env.Load(&e, &env.Options{Source: src}); err != nil {
		return fmt.Errorf("config: load environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.ListenAddr, e.ListenAddr)
	if e.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(e.LogLevel)
	}
	set(&cfg.Store.DSN, e.StoreDSN)
	set(&cfg.Store.ProjectID, e.ProjectID)
	set(&cfg.Providers.STT.APIKey, e.STTAPIKey)
	set(&cfg.Providers.Sentiment.APIKey, e.SentimentAPIKey)
	set(&cfg.Providers.LLM.APIKey, e.LLMAPIKey)
	set(&cfg.Reminders.Lease.RedisURL, e.RedisURL)
	set(&cfg.Entitlement.CredentialsFile, e.PlayCredentials)
	set(&cfg.Reminders.TimeUTC, e.ReminderTime)
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Store
	switch cfg.Store.Name {
	case "", StoreMemory:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres store"))
		}
	case StoreFirestore:
		if cfg.Store.ProjectID == "" {
			errs = append(errs, errors.New("store.project_id is required for the firestore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.name %q is invalid; valid values: memory, postgres, firestore", cfg.Store.Name))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT)
	validateProviderName("sentiment", cfg.Providers.Sentiment)
	validateProviderName("llm", cfg.Providers.LLM)
	validateProviderName("push", cfg.Providers.Push)
	if cfg.Providers.Sentiment.Name == "llm" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.sentiment: llm scoring requires providers.llm"))
	}
	if cfg.Providers.Push.Fallback != nil {
		errs = append(errs, errors.New("providers.push.fallback is not supported"))
	}
	if cfg.Providers.STT.Name == "" && cfg.Providers.Sentiment.Name != "" {
		slog.Warn("no transcription provider configured; recordings will not be processed")
	}

	// Pipeline
	if cfg.Pipeline.TranscriptionTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.transcription_timeout %s must not be negative", cfg.Pipeline.TranscriptionTimeout))
	}
	if cfg.Pipeline.SentimentTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sentiment_timeout %s must not be negative", cfg.Pipeline.SentimentTimeout))
	}
	if cfg.Pipeline.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency %d must not be negative", cfg.Pipeline.Concurrency))
	}

	// Reminders
	if cfg.Reminders.TimeUTC != "" {
		if _, err := schedule.ParseTimeOfDay(cfg.Reminders.TimeUTC); err != nil {
			errs = append(errs, fmt.Errorf("reminders.time_utc %q must be HH:MM", cfg.Reminders.TimeUTC))
		}
	}
	if n := cfg.Reminders.BatchSize; n < 0 || n > push.MaxMulticastTokens {
		errs = append(errs, fmt.Errorf("reminders.batch_size %d is out of range [1, %d]", n, push.MaxMulticastTokens))
	}
	if cfg.Reminders.PruneConcurrency < 0 {
		errs = append(errs, fmt.Errorf("reminders.prune_concurrency %d must not be negative", cfg.Reminders.PruneConcurrency))
	}
	if cfg.Reminders.Lease.TTL < 0 || (cfg.Reminders.Lease.TTL > 0 && cfg.Reminders.Lease.TTL < time.Second) {
		errs = append(errs, fmt.Errorf("reminders.lease.ttl %s must be at least 1s", cfg.Reminders.Lease.TTL))
	}
	if cfg.Reminders.Enabled && cfg.Providers.Push.Name == "" {
		errs = append(errs, errors.New("reminders.enabled requires providers.push"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if the entry (or its fallback) names a
// provider not found in the [ValidProviderNames] list for the given kind.
func validateProviderName(kind string, entry ProviderEntry) {
	for e := &entry; e != nil; e = e.Fallback {
		if e.Name == "" || slices.Contains(ValidProviderNames[kind], e.Name) {
			continue
		}
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"kind", kind,
			"name", e.Name,
			"known", ValidProviderNames[kind],
		)
	}
}
