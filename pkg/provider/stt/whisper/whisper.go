// Package whisper provides an STT provider backed by a whisper.cpp server
// (the whisper-server binary, which exposes POST /inference).
//
// whisper.cpp has no notion of storage URIs, so the provider downloads the
// recording through an audio.Source and uploads the bytes as a multipart
// form. The server must have been started with --convert when the audio is
// not 16 kHz WAV.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", src, whisper.WithModel("base.en"))
//	op, err := p.LongRunningRecognize(ctx, "s3://bucket/u1/r1.flac", cfg)
//	results, err := op.Wait(ctx)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/vibejournal/pkg/audio"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. When empty
// the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithHTTPClient replaces the HTTP client. The default has a 5 minute
// timeout since whole recordings are transcribed in one request.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider against a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	source     audio.Source
	model      string
	httpClient *http.Client
}

// New creates a Provider for the server at serverURL that reads audio from
// src. Both are required.
func New(serverURL string, src audio.Source, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	if src == nil {
		return nil, errors.New("whisper: audio source must not be nil")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		source:     src,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// LongRunningRecognize implements stt.Provider. The download and inference
// run on a background goroutine.
func (p *Provider) LongRunningRecognize(ctx context.Context, uri string, cfg stt.RecognitionConfig) (stt.Operation, error) {
	return stt.Start(ctx, func(ctx context.Context) ([]stt.Result, error) {
		text, err := p.infer(ctx, uri, stt.BaseLanguage(cfg.Language))
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		return []stt.Result{{Alternatives: []stt.Alternative{{Transcript: text}}}}, nil
	}), nil
}

// infer uploads the audio at uri to /inference and returns the text.
func (p *Provider) infer(ctx context.Context, uri, language string) (string, error) {
	rc, err := p.source.Open(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("whisper: open audio: %w", err)
	}
	defer rc.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", audio.BaseName(uri))
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return "", fmt.Errorf("whisper: read audio: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
