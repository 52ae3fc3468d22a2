package app_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/vibejournal/internal/app"
	"github.com/MrWong99/vibejournal/internal/config"
	"github.com/MrWong99/vibejournal/internal/lease"
	"github.com/MrWong99/vibejournal/internal/observe"
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

type okVerifier struct{}

func (okVerifier) Verify(context.Context, string, string) (bool, error) { return true, nil }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testProviders() *app.Providers {
	return &app.Providers{
		STT:       &sttmock.Provider{Results: []stt.Result{{Alternatives: []stt.Alternative{{Transcript: "what a lovely day"}}}}},
		Sentiment: &sentimentmock.Provider{Result: sentimentmock.Scored(0.7, 1.1)},
		LLM:       &llmmock.Provider{Response: &llm.CompletionResponse{Content: "Describe your morning."}},
		Push:      &pushmock.Sender{},
	}
}

func seeded() *memstore.Store {
	st := memstore.New()
	st.PutTemplate(store.Template{ID: "t1", Type: store.TemplateDailyReminder, IsActive: true, Title: "Hi", Body: "How do you feel?"})
	st.PutSubscriber(store.Subscriber{ID: "alice", DailyReminderEnabled: true, FCMTokens: []string{"a1"}})
	return st
}

func post(t *testing.T, h http.Handler, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_WiresEndpoints(t *testing.T) {
	t.Parallel()
	st := seeded()
	st.PutRecording(store.Recording{ID: "r1", UserID: "alice", AudioPath: "alice/r1.flac"})
	ps := testProviders()

	a, err := app.New(context.Background(), &config.Config{}, ps,
		app.WithStore(st),
		app.WithVerifier(okVerifier{}),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := a.Handler()

	if rec := post(t, h, "/v1/events/recording-created", "", `{"id":"r1","audioPath":"alice/r1.flac"}`); rec.Code != http.StatusOK {
		t.Errorf("recording-created = %d: %s", rec.Code, rec.Body)
	}
	if r, _ := st.GetRecording(context.Background(), "r1"); r.Mood != mood.Positive {
		t.Errorf("mood = %q, want positive", r.Mood)
	}

	if rec := post(t, h, "/v1/jobs/daily-reminders", "", ""); rec.Code != http.StatusOK {
		t.Errorf("daily-reminders = %d: %s", rec.Code, rec.Body)
	}
	if got := ps.Push.(*pushmock.Sender).Calls(); len(got) != 1 {
		t.Errorf("push calls = %d, want 1", len(got))
	}

	if rec := post(t, h, "/v1/assistant", "alice", `{"action":"get_prompt"}`); rec.Code != http.StatusOK {
		t.Errorf("assistant = %d: %s", rec.Code, rec.Body)
	}

	if rec := post(t, h, "/v1/purchases/verify", "alice", `{"purchaseToken":"p","subscriptionId":"s"}`); rec.Code != http.StatusOK {
		t.Errorf("purchases/verify = %d: %s", rec.Code, rec.Body)
	}
	if e, _ := st.Entitlement("alice"); e != store.PremiumEntitlement {
		t.Errorf("entitlement = %+v", e)
	}
}

func TestNew_WithoutProviders(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), &config.Config{}, nil, app.WithStore(memstore.New()), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := a.Handler()
	for _, path := range []string{"/v1/events/recording-created", "/v1/jobs/daily-reminders", "/v1/assistant", "/v1/purchases/verify"} {
		if rec := post(t, h, path, "u", "{}"); rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
}

func TestNew_MemoryStoreFromConfig(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), &config.Config{Store: config.StoreConfig{Name: config.StoreMemory}}, nil, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_UnknownStore(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), &config.Config{Store: config.StoreConfig{Name: "cassandra"}}, nil, app.WithMetrics(testMetrics(t)))
	if err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestNew_BadReminderTime(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Reminders: config.RemindersConfig{Enabled: true, TimeUTC: "25:00"}}
	_, err := app.New(context.Background(), cfg, testProviders(), app.WithStore(seeded()), app.WithMetrics(testMetrics(t)))
	if err == nil {
		t.Fatal("expected error for invalid reminder time")
	}
}

func TestRun_DailyTriggerAndShutdown(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	ps := testProviders()
	closed := make(chan struct{})
	ps.Closers = append(ps.Closers, func() error { close(closed); return nil })

	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Reminders: config.RemindersConfig{Enabled: true, TimeUTC: "08:30"},
	}
	a, err := app.New(context.Background(), cfg, ps,
		app.WithStore(seeded()),
		app.WithLocker(lease.NewLocal()),
		app.WithClock(clock),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("daily trigger never armed: %v", err)
	}
	clock.Advance(30 * time.Minute)

	sender := ps.Push.(*pushmock.Sender)
	deadline := time.After(5 * time.Second)
	for len(sender.Calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("daily trigger did not send reminders")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	select {
	case <-closed:
	default:
		t.Error("provider closer was not called")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := &config.Config{Server: config.ServerConfig{ListenAddr: ln.Addr().String()}}
	a, err := app.New(context.Background(), cfg, nil, app.WithStore(memstore.New()), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want listen error", err)
	}
}

func TestSetReminderTime(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Reminders: config.RemindersConfig{Enabled: true}}
	a, err := app.New(context.Background(), cfg, testProviders(), app.WithStore(seeded()), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.SetReminderTime("07:45"); err != nil {
		t.Errorf("SetReminderTime valid: %v", err)
	}
	if err := a.SetReminderTime("7pm"); err == nil {
		t.Error("SetReminderTime invalid: expected error")
	}

	disabled, err := app.New(context.Background(), &config.Config{}, nil, app.WithStore(memstore.New()), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := disabled.SetReminderTime("7pm"); err != nil {
		t.Errorf("disabled trigger: %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	calls := 0
	ps := &app.Providers{Closers: []func() error{func() error { calls++; return nil }}}
	a, err := app.New(context.Background(), &config.Config{}, ps, app.WithStore(memstore.New()), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = a.Shutdown(context.Background())
	_ = a.Shutdown(context.Background())
	if calls != 1 {
		t.Errorf("closer calls = %d, want 1", calls)
	}
}
