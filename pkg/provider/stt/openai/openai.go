// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (whisper-1, gpt-4o-transcribe and compatible
// servers).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/vibejournal/pkg/audio"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	source audio.Source
	model  oai.AudioModel
}

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider that downloads audio through src.
func New(apiKey string, src audio.Source, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if src == nil {
		return nil, errors.New("openai stt: audio source must not be nil")
	}

	cfg := &config{model: string(defaultModel)}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		source: src,
		model:  oai.AudioModel(cfg.model),
	}, nil
}

// LongRunningRecognize implements stt.Provider.
func (p *Provider) LongRunningRecognize(ctx context.Context, uri string, cfg stt.RecognitionConfig) (stt.Operation, error) {
	return stt.Start(ctx, func(ctx context.Context) ([]stt.Result, error) {
		rc, err := p.source.Open(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("openai stt: open audio: %w", err)
		}
		defer rc.Close()

		name := audio.BaseName(uri)
		params := oai.AudioTranscriptionNewParams{
			File:  oai.File(rc, name, audio.ContentType(name)),
			Model: p.model,
		}
		if lang := stt.BaseLanguage(cfg.Language); lang != "" {
			params.Language = oai.String(lang)
		}

		tr, err := p.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai stt: transcribe: %w", err)
		}
		text := strings.TrimSpace(tr.Text)
		if text == "" {
			return nil, nil
		}
		return []stt.Result{{Alternatives: []stt.Alternative{{Transcript: text}}}}, nil
	}), nil
}
