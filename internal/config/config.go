// Package config provides the configuration schema, loader, and provider registry
// for the VibeJournal backend.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Store backends.
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Reminders   RemindersConfig   `yaml:"reminders"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Name is one of "memory", "postgres" or "firestore".
	Name string `yaml:"name"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// ProjectID is the Google Cloud project of the Firestore database.
	ProjectID string `yaml:"project_id"`

	// Collections overrides Firestore collection names.
	Collections CollectionsConfig `yaml:"collections"`
}

// CollectionsConfig names the Firestore collections. Empty names keep the
// mobile client's defaults.
type CollectionsConfig struct {
	Recordings  string `yaml:"recordings"`
	Templates   string `yaml:"templates"`
	Subscribers string `yaml:"subscribers"`
}

// ProvidersConfig declares which provider implementation to use for each
// external service. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT       ProviderEntry `yaml:"stt"`
	Sentiment ProviderEntry `yaml:"sentiment"`
	LLM       ProviderEntry `yaml:"llm"`
	Push      ProviderEntry `yaml:"push"`
	Audio     AudioConfig   `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "google", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`

	// Fallback is tried when the primary provider fails or its circuit is
	// open. Only transcription, sentiment and LLM providers support it.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// AudioConfig enables the sources transcription backends read uploads from.
type AudioConfig struct {
	// FileRoot serves "file://" URIs from a local directory when set.
	FileRoot string `yaml:"file_root"`

	// S3 serves "s3://" URIs with the default AWS credential chain.
	S3 bool `yaml:"s3"`

	// S3Region overrides AWS_REGION.
	S3Region string `yaml:"s3_region"`
}

// PipelineConfig tunes the audio-to-mood pipeline.
type PipelineConfig struct {
	// AudioURIPrefix is prepended to a recording's relative audio path
	// (e.g., "gs://vibejournal.appspot.com").
	AudioURIPrefix string `yaml:"audio_uri_prefix"`

	// Language is the BCP-47 code sent to the transcription service.
	Language string `yaml:"language"`

	TranscriptionTimeout time.Duration `yaml:"transcription_timeout"`
	SentimentTimeout     time.Duration `yaml:"sentiment_timeout"`

	// Concurrency bounds recordings processed at once from the store watcher.
	Concurrency int `yaml:"concurrency"`

	// Watch enables the store change feed. When false, recordings are only
	// processed through the HTTP event endpoint.
	Watch *bool `yaml:"watch"`
}

// WatchEnabled reports whether the store change feed should run. Defaults to true.
func (p PipelineConfig) WatchEnabled() bool {
	return p.Watch == nil || *p.Watch
}

// RemindersConfig configures the daily reminder job.
type RemindersConfig struct {
	// Enabled starts the built-in daily trigger. The HTTP trigger works
	// regardless.
	Enabled bool `yaml:"enabled"`

	// TimeUTC is the daily firing time as "HH:MM". Default "09:00".
	TimeUTC string `yaml:"time_utc"`

	// TemplateType selects templates by their type field. Default "daily_reminder".
	TemplateType string `yaml:"template_type"`

	// BatchSize caps tokens per multicast, at most 500.
	BatchSize int `yaml:"batch_size"`

	// PruneConcurrency bounds concurrent dead-token removals.
	PruneConcurrency int `yaml:"prune_concurrency"`

	// Seed fixes the template selection sequence. Zero seeds randomly.
	Seed uint64 `yaml:"seed"`

	Lease LeaseConfig `yaml:"lease"`
}

// LeaseConfig configures the cross-replica run lease.
type LeaseConfig struct {
	// RedisURL enables the Redis lease ("redis://host:6379/0"). Empty
	// selects an in-process lease.
	RedisURL string `yaml:"redis_url"`

	TTL time.Duration `yaml:"ttl"`
}

// EntitlementConfig configures Google Play purchase verification.
type EntitlementConfig struct {
	// PackageName is the Android application ID.
	PackageName string `yaml:"package_name"`

	// CredentialsFile is a service account key with androidpublisher scope.
	// Empty disables the purchase endpoint.
	CredentialsFile string `yaml:"credentials_file"`
}

// TelemetryConfig configures OpenTelemetry resources.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}
