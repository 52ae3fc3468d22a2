package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	audiomock "github.com/MrWong99/vibejournal/pkg/audio/mock"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", &audiomock.Source{}); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", nil); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()
	p, _ := New("key", &audiomock.Source{}, WithModel("base"))
	raw, err := p.buildURL(stt.RecognitionConfig{Language: "en-US", Channels: 1, Encoding: stt.EncodingFLAC})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	for k, want := range map[string]string{"model": "base", "language": "en-US", "channels": "1", "punctuate": "true"} {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if q.Has("encoding") {
		t.Error("encoding must not be set for container formats")
	}
}

func TestProvider_LongRunningRecognize(t *testing.T) {
	t.Parallel()

	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"rough day","confidence":0.8},{"transcript":"rough hay"}]}]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", &audiomock.Source{Data: []byte("fLaC")}, WithEndpoint(srv.URL+"/v1/listen"))
	op, err := p.LongRunningRecognize(context.Background(), "s3://b/r.flac", stt.RecognitionConfig{Channels: 1, Language: "en-US"})
	if err != nil {
		t.Fatalf("LongRunningRecognize: %v", err)
	}
	results, err := op.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := stt.JoinTranscript(results); got != "rough day" {
		t.Errorf("transcript = %q", got)
	}
	if len(results[0].Alternatives) != 2 {
		t.Errorf("alternatives = %d, want 2", len(results[0].Alternatives))
	}
	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "audio/flac" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if string(gotBody) != "fLaC" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestProvider_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	p, _ := New("bad", &audiomock.Source{Data: []byte("x")}, WithEndpoint(srv.URL))
	op, _ := p.LongRunningRecognize(context.Background(), "s3://b/r.flac", stt.RecognitionConfig{})
	if _, err := op.Wait(context.Background()); err == nil {
		t.Error("expected error for HTTP 401")
	}
}
