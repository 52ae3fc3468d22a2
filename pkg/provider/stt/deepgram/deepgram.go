// Package deepgram provides an STT provider backed by the Deepgram
// pre-recorded audio API (POST /v1/listen).
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/vibejournal/pkg/audio"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithEndpoint overrides the listen endpoint, mainly for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by Deepgram.
type Provider struct {
	apiKey     string
	source     audio.Source
	model      string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey and src must be set.
func New(apiKey string, src audio.Source, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	if src == nil {
		return nil, errors.New("deepgram: audio source must not be nil")
	}
	p := &Provider{
		apiKey:     apiKey,
		source:     src,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// LongRunningRecognize implements stt.Provider.
func (p *Provider) LongRunningRecognize(ctx context.Context, uri string, cfg stt.RecognitionConfig) (stt.Operation, error) {
	endpoint, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	return stt.Start(ctx, func(ctx context.Context) ([]stt.Result, error) {
		return p.listen(ctx, endpoint, uri)
	}), nil
}

// buildURL constructs the listen URL for cfg.
func (p *Provider) buildURL(cfg stt.RecognitionConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Encoding == stt.EncodingLinear16 {
		q.Set("encoding", "linear16")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse is the subset of the Deepgram response we read.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (p *Provider) listen(ctx context.Context, endpoint, uri string) ([]stt.Result, error) {
	rc, err := p.source.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("deepgram: open audio: %w", err)
	}
	defer rc.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, rc)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", audio.ContentType(uri))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: server returned HTTP %d", resp.StatusCode)
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("deepgram: parse response: %w", err)
	}

	var results []stt.Result
	for _, ch := range lr.Results.Channels {
		var r stt.Result
		for _, a := range ch.Alternatives {
			if strings.TrimSpace(a.Transcript) == "" {
				continue
			}
			r.Alternatives = append(r.Alternatives, stt.Alternative{Transcript: a.Transcript, Confidence: a.Confidence})
		}
		if len(r.Alternatives) > 0 {
			results = append(results, r)
		}
	}
	return results, nil
}
