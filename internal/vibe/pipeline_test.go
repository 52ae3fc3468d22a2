package vibe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/mood"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
	sentimentmock "github.com/MrWong99/vibejournal/pkg/provider/sentiment/mock"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
	sttmock "github.com/MrWong99/vibejournal/pkg/provider/stt/mock"
	"github.com/MrWong99/vibejournal/pkg/store"
	"github.com/MrWong99/vibejournal/pkg/store/memstore"
	storemock "github.com/MrWong99/vibejournal/pkg/store/mock"
)

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func newPipeline(t *testing.T, rec stt.Provider, an sentiment.Provider, st store.RecordingStore, opts ...Option) *Pipeline {
	t.Helper()
	m, _ := testMetrics(t)
	p, err := New(rec, an, st, append([]Option{WithMetrics(m)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// describe renders the present fields of an update in a fixed order.
func describe(u store.RecordingUpdate) string {
	var parts []string
	if u.Transcription != nil {
		parts = append(parts, fmt.Sprintf("transcription=%q", *u.Transcription))
	}
	if u.Mood != nil {
		parts = append(parts, "mood="+u.Mood.String())
	}
	if u.SentimentScore != nil {
		parts = append(parts, fmt.Sprintf("score=%g", *u.SentimentScore))
	}
	if u.SentimentMagnitude != nil {
		parts = append(parts, fmt.Sprintf("magnitude=%g", *u.SentimentMagnitude))
	}
	return strings.Join(parts, " ")
}

func assertUpdates(t *testing.T, got []storemock.UpdateCall, id string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		descs := make([]string, len(got))
		for i, c := range got {
			descs[i] = describe(c.Update)
		}
		t.Fatalf("got %d updates %q, want %d %q", len(got), descs, len(want), want)
	}
	for i := range want {
		if got[i].ID != id {
			t.Errorf("update[%d] id = %q, want %q", i, got[i].ID, id)
		}
		if d := describe(got[i].Update); d != want[i] {
			t.Errorf("update[%d] = %s, want %s", i, d, want[i])
		}
	}
}

var audioRec = store.Recording{ID: "vibe-1", UserID: "u1", AudioPath: "u1/vibe-1.flac"}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := New(nil, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"stt", "sentiment", "recording store"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestProcess_MissingAudioWritesNothing(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"", "   "} {
		st := &storemock.RecordingStore{}
		recognizer := &sttmock.Provider{Results: sttmock.Transcript("hello")}
		analyzer := &sentimentmock.Provider{Result: sentimentmock.Scored(0.9, 1)}
		p := newPipeline(t, recognizer, analyzer, st)

		outcome, err := p.Process(context.Background(), store.Recording{ID: "r", AudioPath: path})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if outcome != OutcomeSkipped {
			t.Errorf("outcome = %v, want skipped", outcome)
		}
		if n := len(st.UpdateCalls()); n != 0 {
			t.Errorf("got %d writes, want 0", n)
		}
		if n := len(recognizer.Calls()); n != 0 {
			t.Errorf("recognizer called %d times, want 0", n)
		}
	}
}

func TestProcess_TranscriptionFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recognizer *sttmock.Provider
		opts       []Option
	}{
		{name: "submit rejected", recognizer: &sttmock.Provider{RecognizeErr: errors.New("permission denied")}},
		{name: "operation failed", recognizer: &sttmock.Provider{WaitErr: errors.New("bad audio")}},
		{
			name:       "timeout",
			recognizer: &sttmock.Provider{Block: make(chan struct{}), Results: sttmock.Transcript("late")},
			opts:       []Option{WithTranscriptionTimeout(20 * time.Millisecond)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := &storemock.RecordingStore{}
			analyzer := &sentimentmock.Provider{Result: sentimentmock.Scored(0.9, 1)}
			p := newPipeline(t, tt.recognizer, analyzer, st, tt.opts...)

			outcome, err := p.Process(context.Background(), audioRec)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if outcome != OutcomeTranscriptionFailed {
				t.Errorf("outcome = %v, want transcription_failed", outcome)
			}
			assertUpdates(t, st.UpdateCalls(), "vibe-1", `transcription="Transcription failed." mood=unknown`)
			if n := len(analyzer.Texts()); n != 0 {
				t.Errorf("sentiment called %d times, want 0", n)
			}
		})
	}
}

func TestProcess_WhitespaceTranscriptIsNeutral(t *testing.T) {
	t.Parallel()
	st := &storemock.RecordingStore{}
	analyzer := &sentimentmock.Provider{Result: sentimentmock.Scored(-0.9, 1)}
	p := newPipeline(t, &sttmock.Provider{Results: sttmock.Transcript("  ", "\t")}, analyzer, st)

	outcome, err := p.Process(context.Background(), audioRec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != OutcomeEmptyTranscript {
		t.Errorf("outcome = %v, want empty_transcript", outcome)
	}
	assertUpdates(t, st.UpdateCalls(), "vibe-1", `transcription="  \n\t"`, "mood=neutral")
	if n := len(analyzer.Texts()); n != 0 {
		t.Errorf("sentiment called %d times, want 0", n)
	}
}

func TestProcess_NoResultsIsNeutral(t *testing.T) {
	t.Parallel()
	st := &storemock.RecordingStore{}
	p := newPipeline(t, &sttmock.Provider{}, &sentimentmock.Provider{}, st)

	outcome, err := p.Process(context.Background(), audioRec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != OutcomeEmptyTranscript {
		t.Errorf("outcome = %v, want empty_transcript", outcome)
	}
	assertUpdates(t, st.UpdateCalls(), "vibe-1", `transcription=""`, "mood=neutral")
}

func TestProcess_Classified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result *sentiment.Result
		want   string
	}{
		{name: "positive", result: sentimentmock.Scored(0.6, 0.8), want: "mood=positive score=0.6 magnitude=0.8"},
		{name: "negative", result: sentimentmock.Scored(-0.7, 2.1), want: "mood=negative score=-0.7 magnitude=2.1"},
		{name: "upper boundary", result: sentimentmock.Scored(0.25, 0.3), want: "mood=neutral score=0.25 magnitude=0.3"},
		{name: "lower boundary", result: sentimentmock.Scored(-0.25, 0.3), want: "mood=neutral score=-0.25 magnitude=0.3"},
		{name: "missing values", result: &sentiment.Result{}, want: "mood=neutral score=0 magnitude=0"},
		{name: "missing magnitude", result: &sentiment.Result{Score: sentiment.Float64(0.5)}, want: "mood=positive score=0.5 magnitude=0"},
		{name: "nil result", result: nil, want: "mood=neutral score=0 magnitude=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := &storemock.RecordingStore{}
			analyzer := &sentimentmock.Provider{Result: tt.result}
			p := newPipeline(t, &sttmock.Provider{Results: sttmock.Transcript("I had a wonderful day")}, analyzer, st)

			outcome, err := p.Process(context.Background(), audioRec)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if outcome != OutcomeClassified {
				t.Errorf("outcome = %v, want classified", outcome)
			}
			assertUpdates(t, st.UpdateCalls(), "vibe-1", `transcription="I had a wonderful day"`, tt.want)
			if texts := analyzer.Texts(); len(texts) != 1 || texts[0] != "I had a wonderful day" {
				t.Errorf("sentiment texts = %q", texts)
			}
		})
	}
}

func TestProcess_AnalysisFailure(t *testing.T) {
	t.Parallel()
	st := &storemock.RecordingStore{}
	p := newPipeline(t,
		&sttmock.Provider{Results: sttmock.Transcript("rough day")},
		&sentimentmock.Provider{Err: errors.New("quota exceeded")},
		st,
	)

	outcome, err := p.Process(context.Background(), audioRec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != OutcomeAnalysisFailed {
		t.Errorf("outcome = %v, want analysis_failed", outcome)
	}
	assertUpdates(t, st.UpdateCalls(), "vibe-1", `transcription="rough day"`, "mood=unknown")
}

func TestProcess_RecognitionRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prefix  string
		path    string
		wantURI string
	}{
		{name: "prefix joined", prefix: "gs://vibejournal-audio/", path: "/u1/vibe-1.flac", wantURI: "gs://vibejournal-audio/u1/vibe-1.flac"},
		{name: "no prefix", path: "u1/vibe-1.flac", wantURI: "u1/vibe-1.flac"},
		{name: "absolute uri kept", prefix: "gs://other", path: "s3://bucket/u1/vibe-1.flac", wantURI: "s3://bucket/u1/vibe-1.flac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recognizer := &sttmock.Provider{Results: []stt.Result{
				{Alternatives: []stt.Alternative{{Transcript: "first part"}, {Transcript: "ignored"}}},
				{},
				{Alternatives: []stt.Alternative{{Transcript: "second part"}}},
			}}
			st := &storemock.RecordingStore{}
			p := newPipeline(t, recognizer, &sentimentmock.Provider{Result: sentimentmock.Scored(0, 0)}, st,
				WithAudioURIPrefix(tt.prefix))

			if _, err := p.Process(context.Background(), store.Recording{ID: "r", AudioPath: tt.path}); err != nil {
				t.Fatalf("Process: %v", err)
			}
			calls := recognizer.Calls()
			if len(calls) != 1 {
				t.Fatalf("recognizer called %d times", len(calls))
			}
			want := stt.RecognitionConfig{Encoding: stt.EncodingFLAC, Channels: 1, Language: "en-US"}
			if calls[0].URI != tt.wantURI || calls[0].Cfg != want {
				t.Errorf("call = %+v, want uri %q cfg %+v", calls[0], tt.wantURI, want)
			}
			if got := st.UpdateCalls()[0].Update.Transcription; got == nil || *got != "first part\nsecond part" {
				t.Errorf("transcription = %v, want joined top alternatives", got)
			}
		})
	}
}

func TestProcess_ReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	st := memstore.New()
	st.PutRecording(audioRec)
	p := newPipeline(t,
		&sttmock.Provider{Results: sttmock.Transcript("I had a wonderful day")},
		&sentimentmock.Provider{Result: sentimentmock.Scored(0.6, 0.8)},
		st,
	)

	if _, err := p.Process(context.Background(), audioRec); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	first, _ := st.GetRecording(context.Background(), "vibe-1")

	if _, err := p.Process(context.Background(), first); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	second, _ := st.GetRecording(context.Background(), "vibe-1")

	if *second.Transcription != "I had a wonderful day" {
		t.Errorf("transcription = %q, want it overwritten not appended", *second.Transcription)
	}
	if second.Mood != mood.Positive || *second.SentimentScore != 0.6 || *second.SentimentMagnitude != 0.8 {
		t.Errorf("second run = %+v", second)
	}
	if *first.Transcription != *second.Transcription || first.Mood != second.Mood ||
		*first.SentimentScore != *second.SentimentScore || *first.SentimentMagnitude != *second.SentimentMagnitude {
		t.Errorf("replay changed the document: first %+v, second %+v", first, second)
	}
}

func TestProcess_WriteErrorIsReturned(t *testing.T) {
	t.Parallel()
	st := &storemock.RecordingStore{UpdateErr: store.ErrNotFound}
	analyzer := &sentimentmock.Provider{Result: sentimentmock.Scored(0.6, 0.8)}
	p := newPipeline(t, &sttmock.Provider{Results: sttmock.Transcript("hi")}, analyzer, st)

	_, err := p.Process(context.Background(), audioRec)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := len(analyzer.Texts()); n != 0 {
		t.Errorf("sentiment called %d times after failed transcript write", n)
	}
}

func TestProcess_RecordsOutcomeMetrics(t *testing.T) {
	t.Parallel()
	m, reader := testMetrics(t)
	p, err := New(
		&sttmock.Provider{Results: sttmock.Transcript("great")},
		&sentimentmock.Provider{Result: sentimentmock.Scored(0.9, 1)},
		&storemock.RecordingStore{},
		WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = p.Process(context.Background(), audioRec)
	_, _ = p.Process(context.Background(), store.Recording{ID: "no-audio"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "vibejournal.recordings.processed" && met.Name != "vibejournal.moods.classified" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				for _, kv := range dp.Attributes.ToSlice() {
					got[met.Name+"/"+kv.Value.AsString()] += dp.Value
				}
			}
		}
	}
	want := map[string]int64{
		"vibejournal.recordings.processed/classified": 1,
		"vibejournal.recordings.processed/skipped":    1,
		"vibejournal.moods.classified/positive":       1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d (all: %v)", k, got[k], v, got)
		}
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()
	tests := map[Outcome]string{
		OutcomeClassified:          "classified",
		OutcomeSkipped:             "skipped",
		OutcomeTranscriptionFailed: "transcription_failed",
		OutcomeEmptyTranscript:     "empty_transcript",
		OutcomeAnalysisFailed:      "analysis_failed",
		Outcome(42):                "unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
