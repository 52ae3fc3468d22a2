package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ReminderTimeChanged bool
	NewReminderTime     string

	// RestartRequired lists sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ReminderTimeChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Reminders.TimeUTC != new.Reminders.TimeUTC {
		d.ReminderTimeChanged = true
		d.NewReminderTime = new.Reminders.TimeUTC
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Pipeline.AudioURIPrefix != new.Pipeline.AudioURIPrefix ||
		old.Pipeline.Language != new.Pipeline.Language ||
		old.Pipeline.TranscriptionTimeout != new.Pipeline.TranscriptionTimeout ||
		old.Pipeline.SentimentTimeout != new.Pipeline.SentimentTimeout ||
		old.Pipeline.Concurrency != new.Pipeline.Concurrency ||
		old.Pipeline.WatchEnabled() != new.Pipeline.WatchEnabled() {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	oldRem, newRem := old.Reminders, new.Reminders
	oldRem.TimeUTC, newRem.TimeUTC = "", ""
	if oldRem != newRem {
		d.RestartRequired = append(d.RestartRequired, "reminders")
	}
	if old.Entitlement != new.Entitlement {
		d.RestartRequired = append(d.RestartRequired, "entitlement")
	}
	return d
}

// sameProviders compares provider selections by name, model and endpoint.
// Options maps are not compared.
func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(&a.STT, &b.STT) &&
		sameEntry(&a.Sentiment, &b.Sentiment) &&
		sameEntry(&a.LLM, &b.LLM) &&
		sameEntry(&a.Push, &b.Push) &&
		a.Audio == b.Audio
}

func sameEntry(a, b *ProviderEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && a.Model == b.Model && a.BaseURL == b.BaseURL && a.APIKey == b.APIKey &&
		sameEntry(a.Fallback, b.Fallback)
}
