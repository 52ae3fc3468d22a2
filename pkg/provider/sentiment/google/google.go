// Package google provides a sentiment provider backed by the Google Cloud
// Natural Language API (analyzeSentiment).
package google

import (
	"context"
	"fmt"

	language "cloud.google.com/go/language/apiv1"
	"cloud.google.com/go/language/apiv1/languagepb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
)

var _ sentiment.Provider = (*Provider)(nil)

// api is satisfied by *language.Client.
type api interface {
	AnalyzeSentiment(ctx context.Context, req *languagepb.AnalyzeSentimentRequest, opts ...gax.CallOption) (*languagepb.AnalyzeSentimentResponse, error)
	Close() error
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the document language (ISO-639-1, e.g. "en"). Empty lets
// the API detect it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements sentiment.Provider on Cloud Natural Language.
type Provider struct {
	client   api
	language string
}

// New creates a Natural Language client using Application Default
// Credentials unless clientOpts say otherwise.
func New(ctx context.Context, opts []Option, clientOpts ...option.ClientOption) (*Provider, error) {
	c, err := language.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google sentiment: new client: %w", err)
	}
	return newProvider(c, opts...), nil
}

func newProvider(c api, opts ...Option) *Provider {
	p := &Provider{client: c}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Analyze implements sentiment.Provider.
func (p *Provider) Analyze(ctx context.Context, text string) (*sentiment.Result, error) {
	resp, err := p.client.AnalyzeSentiment(ctx, &languagepb.AnalyzeSentimentRequest{
		Document: &languagepb.Document{
			Source:   &languagepb.Document_Content{Content: text},
			Type:     languagepb.Document_PLAIN_TEXT,
			Language: p.language,
		},
		EncodingType: languagepb.EncodingType_UTF8,
	})
	if err != nil {
		return nil, fmt.Errorf("google sentiment: analyze: %w", err)
	}

	ds := resp.GetDocumentSentiment()
	if ds == nil {
		return &sentiment.Result{}, nil
	}
	return &sentiment.Result{
		Score:     sentiment.Float64(float64(ds.GetScore())),
		Magnitude: sentiment.Float64(float64(ds.GetMagnitude())),
	}, nil
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.client.Close()
}
