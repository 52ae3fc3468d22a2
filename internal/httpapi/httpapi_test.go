package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/vibejournal/internal/assistant"
	"github.com/MrWong99/vibejournal/internal/entitlement"
	"github.com/MrWong99/vibejournal/internal/health"
	"github.com/MrWong99/vibejournal/internal/httpapi"
	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/internal/reminder"
	"github.com/MrWong99/vibejournal/internal/vibe"
	"github.com/MrWong99/vibejournal/pkg/mood"
	"github.com/MrWong99/vibejournal/pkg/provider/llm"
	llmmock "github.com/MrWong99/vibejournal/pkg/provider/llm/mock"
	pushmock "github.com/MrWong99/vibejournal/pkg/provider/push/mock"
	sentimentmock "github.com/MrWong99/vibejournal/pkg/provider/sentiment/mock"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
	sttmock "github.com/MrWong99/vibejournal/pkg/provider/stt/mock"
	"github.com/MrWong99/vibejournal/pkg/store"
	"github.com/MrWong99/vibejournal/pkg/store/memstore"
)

type fakeVerifier struct {
	ok  bool
	err error
}

func (f fakeVerifier) Verify(context.Context, string, string) (bool, error) { return f.ok, f.err }

type fixture struct {
	st     *memstore.Store
	llm    *llmmock.Provider
	sender *pushmock.Sender
	srv    *httptest.Server
}

func newFixture(t *testing.T, verifier entitlement.Verifier) *fixture {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		st:     memstore.New(),
		llm:    &llmmock.Provider{Response: &llm.CompletionResponse{Content: "  Write about a small win today.  "}},
		sender: &pushmock.Sender{},
	}
	recognizer := &sttmock.Provider{Results: []stt.Result{{Alternatives: []stt.Alternative{{Transcript: "great day"}}}}}
	pipeline, err := vibe.New(recognizer, &sentimentmock.Provider{Result: sentimentmock.Scored(0.8, 0.9)}, f.st, vibe.WithMetrics(m))
	if err != nil {
		t.Fatalf("vibe.New: %v", err)
	}
	job := reminder.NewJob(
		reminder.NewSelector(f.st, "", rand.New(rand.NewPCG(1, 2))),
		reminder.NewResolver(f.st),
		reminder.NewFanOut(f.sender, f.st, reminder.WithFanOutMetrics(m)),
		reminder.WithJobMetrics(m),
	)

	api := httpapi.New(httpapi.Deps{
		Health:       health.New(health.Ping("store", f.st)),
		Metrics:      http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),
		Runner:       vibe.NewRunner(pipeline, 1),
		Job:          job,
		Assistant:    assistant.New(f.llm, assistant.WithMetrics(m)),
		Entitlements: entitlement.NewService(verifier, f.st),
	})
	f.srv = httptest.NewServer(api.Handler(m))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) post(t *testing.T, path, user, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(httpapi.UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp.StatusCode, out
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakeVerifier{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestRecordingCreated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakeVerifier{})
	f.st.PutRecording(store.Recording{ID: "r1", UserID: "u1", AudioPath: "u1/r1.flac"})

	code, body := f.post(t, "/v1/events/recording-created", "",
		`{"id":"r1","userId":"u1","audioPath":"u1/r1.flac"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["processed"] != true || body["outcome"] != "classified" {
		t.Errorf("body = %v", body)
	}
	rec, err := f.st.GetRecording(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Mood != mood.Positive {
		t.Errorf("mood = %q, want positive", rec.Mood)
	}

	// A snapshot that already carries a mood is acknowledged without work.
	code, body = f.post(t, "/v1/events/recording-created", "",
		`{"id":"r1","userId":"u1","audioPath":"u1/r1.flac","mood":"positive"}`)
	if code != http.StatusOK || body["processed"] != false {
		t.Errorf("terminal replay: status = %d, body = %v", code, body)
	}
}

func TestRecordingCreated_BadRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakeVerifier{})
	tests := map[string]string{
		"malformed":     `{"id":`,
		"missing id":    `{"audioPath":"x.flac"}`,
		"unknown mood":  `{"id":"r1","mood":"ecstatic"}`,
		"unknown field": `{"id":"r1","extra":true}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			code, out := f.post(t, "/v1/events/recording-created", "", body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if out["error"] == nil {
				t.Errorf("missing error field: %v", out)
			}
		})
	}
}

func TestRecordingCreated_StoreFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakeVerifier{})
	// Not in the store, so the first write fails.
	code, _ := f.post(t, "/v1/events/recording-created", "", `{"id":"ghost","audioPath":"g.flac"}`)
	if code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestDailyReminders(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakeVerifier{})

	code, body := f.post(t, "/v1/jobs/daily-reminders", "", "")
	if code != http.StatusInternalServerError {
		t.Errorf("without templates: status = %d, body = %v", code, body)
	}

	f.st.PutTemplate(store.Template{ID: "t1", Type: store.TemplateDailyReminder, IsActive: true, Title: "Hey", Body: "How are you?"})
	code, body = f.post(t, "/v1/jobs/daily-reminders", "", "")
	if code != http.StatusOK || body["status"] != "no_recipients" {
		t.Errorf("without subscribers: status = %d, body = %v", code, body)
	}

	f.st.PutSubscriber(store.Subscriber{ID: "alice", DailyReminderEnabled: true, FCMTokens: []string{"a1", "a2"}})
	code, body = f.post(t, "/v1/jobs/daily-reminders", "", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	rep, _ := body["report"].(map[string]any)
	if rep["sent"] != float64(2) || rep["succeeded"] != float64(2) {
		t.Errorf("report = %v", rep)
	}
}

func TestAssistant(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakeVerifier{})

	code, body := f.post(t, "/v1/assistant", "u1", `{"action":"get_prompt"}`)
	if code != http.StatusOK || body["responseText"] != "Write about a small win today." {
		t.Errorf("status = %d, body = %v", code, body)
	}

	if code, _ := f.post(t, "/v1/assistant", "", `{"action":"get_prompt"}`); code != http.StatusUnauthorized {
		t.Errorf("no user: status = %d, want 401", code)
	}
	if code, _ := f.post(t, "/v1/assistant", "u1", `{"action":"dance"}`); code != http.StatusBadRequest {
		t.Errorf("invalid action: status = %d, want 400", code)
	}

	f.llm.Err = errors.New("upstream down")
	if code, _ := f.post(t, "/v1/assistant", "u1", `{"action":"get_prompt"}`); code != http.StatusBadGateway {
		t.Errorf("provider error: status = %d, want 502", code)
	}
}

func TestVerifyPurchase(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		verifier fakeVerifier
		body     string
		want     int
		granted  bool
	}{
		{"granted", fakeVerifier{ok: true}, `{"purchaseToken":"tok","subscriptionId":"premium"}`, http.StatusOK, true},
		{"expired", fakeVerifier{}, `{"purchaseToken":"tok","subscriptionId":"premium"}`, http.StatusForbidden, false},
		{"missing token", fakeVerifier{ok: true}, `{"subscriptionId":"premium"}`, http.StatusBadRequest, false},
		{"play error", fakeVerifier{err: errors.New("boom")}, `{"purchaseToken":"tok","subscriptionId":"premium"}`, http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.verifier)
			code, body := f.post(t, "/v1/purchases/verify", "u1", tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (body %v)", code, tt.want, body)
			}
			_, granted := f.st.Entitlement("u1")
			if granted != tt.granted {
				t.Errorf("granted = %v, want %v", granted, tt.granted)
			}
		})
	}
}

func TestUnconfiguredRoutes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(httpapi.New(httpapi.Deps{}).Handler(observe.DefaultMetrics()))
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/v1/assistant", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
