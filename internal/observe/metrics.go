// Package observe provides the observability primitives shared by every
// VibeJournal component: OpenTelemetry metrics and tracing, trace-aware
// structured logging, and the HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus text format through the exporter bridge set up by
// [InitProvider]. [DefaultMetrics] uses the global meter provider; tests
// should call [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all VibeJournal metrics.
const meterName = "github.com/MrWong99/vibejournal"

// Metrics holds every OpenTelemetry instrument of the service. The OTel types
// handle their own synchronisation.
type Metrics struct {
	// TranscriptionDuration covers submit-to-result of one recording.
	TranscriptionDuration metric.Float64Histogram

	// SentimentDuration covers one sentiment analysis call.
	SentimentDuration metric.Float64Histogram

	// LLMDuration covers one assistant completion.
	LLMDuration metric.Float64Histogram

	// PushBatchDuration covers one multicast call to the push backend.
	PushBatchDuration metric.Float64Histogram

	// RecordingsProcessed counts pipeline runs by attribute "outcome".
	RecordingsProcessed metric.Int64Counter

	// MoodsClassified counts terminal mood writes by attribute "mood".
	MoodsClassified metric.Int64Counter

	// RecordingsInFlight is the number of recordings currently being
	// processed.
	RecordingsInFlight metric.Int64UpDownCounter

	// NotificationsSent counts per-token delivery results by attribute
	// "status" (success, failure).
	NotificationsSent metric.Int64Counter

	// TokensPruned counts tokens removed after a terminal delivery failure.
	TokensPruned metric.Int64Counter

	// ReminderRuns counts reminder job runs by attribute "status".
	ReminderRuns metric.Int64Counter

	// ProviderRequests counts provider calls by "provider", "kind", "status".
	ProviderRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by "name" and
	// "state".
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks request latency by "method", "route" and
	// "status".
	HTTPRequestDuration metric.Float64Histogram
}

// providerBuckets are in seconds. Whole recordings take far longer to
// transcribe than a sentiment call, so the range runs up to five minutes.
var providerBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates all instruments on the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.TranscriptionDuration, "vibejournal.transcription.duration", "Latency of transcribing one recording.", providerBuckets},
		{&met.SentimentDuration, "vibejournal.sentiment.duration", "Latency of one sentiment analysis.", providerBuckets},
		{&met.LLMDuration, "vibejournal.llm.duration", "Latency of one assistant completion.", providerBuckets},
		{&met.PushBatchDuration, "vibejournal.push.batch.duration", "Latency of one multicast push call.", providerBuckets},
		{&met.HTTPRequestDuration, "vibejournal.http.request.duration", "HTTP request latency by method, route and status.", nil},
	}
	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
		}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		inst, err := m.Float64Histogram(h.name, opts...)
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.RecordingsProcessed, "vibejournal.recordings.processed", "Recordings handled by the pipeline by outcome."},
		{&met.MoodsClassified, "vibejournal.moods.classified", "Terminal mood values written by mood."},
		{&met.NotificationsSent, "vibejournal.notifications.sent", "Per-token push delivery results by status."},
		{&met.TokensPruned, "vibejournal.tokens.pruned", "Device tokens removed after terminal delivery failures."},
		{&met.ReminderRuns, "vibejournal.reminder.runs", "Daily reminder job runs by status."},
		{&met.ProviderRequests, "vibejournal.provider.requests", "Provider API requests by provider, kind and status."},
		{&met.BreakerTransitions, "vibejournal.breaker.transitions", "Circuit breaker state changes by breaker name and new state."},
	}
	for _, c := range counters {
		inst, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	var err error
	if met.RecordingsInFlight, err = m.Int64UpDownCounter("vibejournal.recordings.in_flight",
		metric.WithDescription("Recordings currently being processed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] created from
// [otel.GetMeterProvider] on first use. Call it after [InitProvider] so the
// instruments bind to the Prometheus-backed provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments ProviderRequests.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordOutcome increments RecordingsProcessed for one pipeline run.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.RecordingsProcessed.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordMood increments MoodsClassified.
func (m *Metrics) RecordMood(ctx context.Context, mood string) {
	m.MoodsClassified.Add(ctx, 1, metric.WithAttributes(Attr("mood", mood)))
}

// RecordDeliveries adds the success and failure counts of one batch.
func (m *Metrics) RecordDeliveries(ctx context.Context, succeeded, failed int) {
	if succeeded > 0 {
		m.NotificationsSent.Add(ctx, int64(succeeded), metric.WithAttributes(Attr("status", "success")))
	}
	if failed > 0 {
		m.NotificationsSent.Add(ctx, int64(failed), metric.WithAttributes(Attr("status", "failure")))
	}
}

// RecordReminderRun increments ReminderRuns.
func (m *Metrics) RecordReminderRun(ctx context.Context, status string) {
	m.ReminderRuns.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordBreakerTransition increments BreakerTransitions. Its signature
// matches the breaker state-change callback once the state is stringified.
func (m *Metrics) RecordBreakerTransition(name, state string) {
	m.BreakerTransitions.Add(context.Background(), 1, metric.WithAttributes(
		Attr("name", name),
		Attr("state", state),
	))
}
