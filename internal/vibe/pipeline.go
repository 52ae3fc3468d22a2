// Package vibe turns an uploaded journal recording into a mood.
//
// [Pipeline.Process] walks one recording through transcription, sentiment
// analysis and classification, persisting each result on the recording
// document as it goes:
//
//	Received → Transcribing → Transcribed → Analyzing → Classified
//
// Upstream failures end the walk in a degraded but terminal state (mood
// "unknown") instead of leaving the recording unprocessed. The pipeline never
// retries; every write is a full-field overwrite keyed by recording ID, so
// replaying the same recording reproduces the same document.
package vibe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/mood"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
	"github.com/MrWong99/vibejournal/pkg/store"
)

// TranscriptionFailedText is written as the transcription when speech
// recognition fails.
const TranscriptionFailedText = "Transcription failed."

// Defaults for the stage timeouts.
const (
	DefaultTranscriptionTimeout = 10 * time.Minute
	DefaultSentimentTimeout     = 30 * time.Second
	DefaultLanguage             = "en-US"
)

// Outcome is the state a recording was left in.
type Outcome int

const (
	// OutcomeClassified means mood, score and magnitude were written.
	OutcomeClassified Outcome = iota

	// OutcomeSkipped means the recording had no audio and nothing was written.
	OutcomeSkipped

	// OutcomeTranscriptionFailed means the failure text and mood "unknown"
	// were written.
	OutcomeTranscriptionFailed

	// OutcomeEmptyTranscript means the transcript was blank and mood
	// "neutral" was written without sentiment fields.
	OutcomeEmptyTranscript

	// OutcomeAnalysisFailed means the transcript was written but sentiment
	// analysis failed, so mood "unknown" was written.
	OutcomeAnalysisFailed
)

// String returns the snake_case outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeClassified:
		return "classified"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeTranscriptionFailed:
		return "transcription_failed"
	case OutcomeEmptyTranscript:
		return "empty_transcript"
	case OutcomeAnalysisFailed:
		return "analysis_failed"
	default:
		return "unknown"
	}
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithAudioURIPrefix sets the prefix joined with a recording's AudioPath to
// form the URI handed to the transcription backend, e.g.
// "gs://vibejournal-audio". Paths that already carry a scheme are used as-is.
func WithAudioURIPrefix(prefix string) Option {
	return func(p *Pipeline) { p.uriPrefix = strings.TrimRight(prefix, "/") }
}

// WithLanguage sets the recognition language. Default: "en-US".
func WithLanguage(tag string) Option {
	return func(p *Pipeline) {
		if tag != "" {
			p.language = tag
		}
	}
}

// WithTranscriptionTimeout bounds submit plus wait of one recognition.
func WithTranscriptionTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.transcriptionTimeout = d
		}
	}
}

// WithSentimentTimeout bounds one sentiment call.
func WithSentimentTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.sentimentTimeout = d
		}
	}
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline processes recordings. It holds no per-recording state and is
// safe for concurrent use.
type Pipeline struct {
	stt       stt.Provider
	sentiment sentiment.Provider
	store     store.RecordingStore
	metrics   *observe.Metrics

	uriPrefix            string
	language             string
	transcriptionTimeout time.Duration
	sentimentTimeout     time.Duration
}

// New creates a Pipeline. All three dependencies are required.
func New(recognizer stt.Provider, analyzer sentiment.Provider, recordings store.RecordingStore, opts ...Option) (*Pipeline, error) {
	var errs []error
	if recognizer == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if analyzer == nil {
		errs = append(errs, errors.New("sentiment provider is required"))
	}
	if recordings == nil {
		errs = append(errs, errors.New("recording store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("vibe: %w", err)
	}

	p := &Pipeline{
		stt:                  recognizer,
		sentiment:            analyzer,
		store:                recordings,
		language:             DefaultLanguage,
		transcriptionTimeout: DefaultTranscriptionTimeout,
		sentimentTimeout:     DefaultSentimentTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Process runs rec through the pipeline and reports where it ended. The
// returned error is non-nil only when a write to the store failed; the
// outcome then names the stage that was reached.
func (p *Pipeline) Process(ctx context.Context, rec store.Recording) (outcome Outcome, err error) {
	ctx, span := observe.StartSpan(ctx, "vibe.process",
		trace.WithAttributes(attribute.String("recording.id", rec.ID)))
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome.String()))
		observe.EndSpan(span, err)
	}()
	log := observe.Logger(ctx).With("recording_id", rec.ID)

	if !rec.HasAudio() {
		log.Warn("recording has no audio path, skipping")
		p.metrics.RecordOutcome(ctx, OutcomeSkipped.String())
		return OutcomeSkipped, nil
	}

	p.metrics.RecordingsInFlight.Add(ctx, 1)
	defer p.metrics.RecordingsInFlight.Add(ctx, -1)
	defer func() { p.metrics.RecordOutcome(ctx, outcome.String()) }()

	transcript, terr := p.transcribe(ctx, p.audioURI(rec.AudioPath))
	if terr != nil {
		log.Error("transcription failed", "err", terr)
		return OutcomeTranscriptionFailed, p.write(ctx, rec.ID, store.RecordingUpdate{
			Transcription: ptr(TranscriptionFailedText),
			Mood:          ptr(mood.Unknown),
		})
	}
	if err := p.write(ctx, rec.ID, store.RecordingUpdate{Transcription: &transcript}); err != nil {
		return OutcomeTranscriptionFailed, err
	}

	if strings.TrimSpace(transcript) == "" {
		log.Info("transcript is empty, marking neutral")
		return OutcomeEmptyTranscript, p.write(ctx, rec.ID, store.RecordingUpdate{Mood: ptr(mood.Neutral)})
	}

	res, aerr := p.analyze(ctx, transcript)
	if aerr != nil {
		log.Error("sentiment analysis failed", "err", aerr)
		return OutcomeAnalysisFailed, p.write(ctx, rec.ID, store.RecordingUpdate{Mood: ptr(mood.Unknown)})
	}

	score, magnitude := res.ScoreOrZero(), res.MagnitudeOrZero()
	m := mood.Classify(score)
	log.Info("recording classified", "mood", m, "score", score, "magnitude", magnitude)
	return OutcomeClassified, p.write(ctx, rec.ID, store.RecordingUpdate{
		Mood:               &m,
		SentimentScore:     &score,
		SentimentMagnitude: &magnitude,
	})
}

// transcribe submits the audio and waits for the joined transcript.
func (p *Pipeline) transcribe(ctx context.Context, uri string) (_ string, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.transcriptionTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "vibe.transcribe")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		p.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
		p.metrics.RecordProviderRequest(ctx, "stt", "stt", status(err))
	}()

	op, err := p.stt.LongRunningRecognize(ctx, uri, stt.RecognitionConfig{
		Encoding: stt.EncodingFLAC,
		Channels: 1,
		Language: p.language,
	})
	if err != nil {
		return "", fmt.Errorf("vibe: submit recognition: %w", err)
	}
	results, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("vibe: wait for recognition: %w", err)
	}
	return stt.JoinTranscript(results), nil
}

// analyze runs sentiment analysis on the transcript.
func (p *Pipeline) analyze(ctx context.Context, text string) (_ *sentiment.Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.sentimentTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "vibe.analyze")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		p.metrics.SentimentDuration.Record(ctx, time.Since(start).Seconds())
		p.metrics.RecordProviderRequest(ctx, "sentiment", "sentiment", status(err))
	}()

	res, err := p.sentiment.Analyze(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vibe: analyze sentiment: %w", err)
	}
	return res, nil
}

// write persists u and counts terminal moods.
func (p *Pipeline) write(ctx context.Context, id string, u store.RecordingUpdate) error {
	if err := p.store.UpdateRecording(ctx, id, u); err != nil {
		return fmt.Errorf("vibe: update recording %s: %w", id, err)
	}
	if u.Mood != nil {
		p.metrics.RecordMood(ctx, u.Mood.String())
	}
	return nil
}

// audioURI joins the configured prefix with path.
func (p *Pipeline) audioURI(path string) string {
	path = strings.TrimSpace(path)
	if p.uriPrefix == "" || strings.Contains(path, "://") {
		return path
	}
	return p.uriPrefix + "/" + strings.TrimLeft(path, "/")
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ptr[T any](v T) *T { return &v }
