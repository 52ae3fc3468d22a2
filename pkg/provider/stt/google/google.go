// Package google provides an STT provider backed by Google Cloud
// Speech-to-Text long-running recognition. Audio is referenced by its
// Cloud Storage URI ("gs://bucket/object") and never downloaded by this
// process.
package google

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// waiter is satisfied by *speech.LongRunningRecognizeOperation.
type waiter interface {
	Wait(ctx context.Context, opts ...gax.CallOption) (*speechpb.LongRunningRecognizeResponse, error)
}

// recognizer is the subset of the Speech client used by Provider.
type recognizer interface {
	longRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (waiter, error)
	Close() error
}

type clientRecognizer struct{ c *speech.Client }

func (r clientRecognizer) longRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (waiter, error) {
	return r.c.LongRunningRecognize(ctx, req)
}

func (r clientRecognizer) Close() error { return r.c.Close() }

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel selects a recognition model such as "latest_long".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithPunctuation toggles automatic punctuation. Enabled by default.
func WithPunctuation(enabled bool) Option {
	return func(p *Provider) { p.punctuation = enabled }
}

// Provider implements stt.Provider on Google Cloud Speech-to-Text.
type Provider struct {
	api         recognizer
	model       string
	punctuation bool
}

// New creates a Speech client using Application Default Credentials unless
// clientOpts say otherwise.
func New(ctx context.Context, opts []Option, clientOpts ...option.ClientOption) (*Provider, error) {
	c, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google stt: new client: %w", err)
	}
	return newProvider(clientRecognizer{c: c}, opts...), nil
}

func newProvider(api recognizer, opts ...Option) *Provider {
	p := &Provider{api: api, punctuation: true}
	for _, o := range opts {
		o(p)
	}
	return p
}

// LongRunningRecognize implements stt.Provider.
func (p *Provider) LongRunningRecognize(ctx context.Context, uri string, cfg stt.RecognitionConfig) (stt.Operation, error) {
	op, err := p.api.longRunningRecognize(ctx, p.buildRequest(uri, cfg))
	if err != nil {
		return nil, fmt.Errorf("google stt: long running recognize: %w", err)
	}
	return &operation{op: op}, nil
}

func (p *Provider) buildRequest(uri string, cfg stt.RecognitionConfig) *speechpb.LongRunningRecognizeRequest {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   encoding(cfg.Encoding),
		SampleRateHertz:            int32(cfg.SampleRate),
		AudioChannelCount:          int32(cfg.Channels),
		LanguageCode:               cfg.Language,
		EnableAutomaticPunctuation: p.punctuation,
		Model:                      p.model,
	}
	return &speechpb.LongRunningRecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: uri},
		},
	}
}

func encoding(e stt.Encoding) speechpb.RecognitionConfig_AudioEncoding {
	switch e {
	case stt.EncodingFLAC:
		return speechpb.RecognitionConfig_FLAC
	case stt.EncodingLinear16:
		return speechpb.RecognitionConfig_LINEAR16
	case stt.EncodingOggOpus:
		return speechpb.RecognitionConfig_OGG_OPUS
	case stt.EncodingWebMOpus:
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.api.Close()
}

type operation struct {
	op waiter
}

func (o *operation) Wait(ctx context.Context) ([]stt.Result, error) {
	resp, err := o.op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("google stt: wait: %w", err)
	}
	results := make([]stt.Result, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		alts := make([]stt.Alternative, 0, len(r.GetAlternatives()))
		for _, a := range r.GetAlternatives() {
			alts = append(alts, stt.Alternative{
				Transcript: a.GetTranscript(),
				Confidence: float64(a.GetConfidence()),
			})
		}
		results = append(results, stt.Result{Alternatives: alts})
	}
	return results, nil
}
