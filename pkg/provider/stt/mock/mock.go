// Package mock provides a test double for stt.Provider.
//
// Example:
//
//	p := &mock.Provider{Results: []stt.Result{{Alternatives: []stt.Alternative{{Transcript: "hi"}}}}}
//	op, _ := p.LongRunningRecognize(ctx, "gs://b/o.flac", cfg)
//	results, _ := op.Wait(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// RecognizeCall records a single invocation of LongRunningRecognize.
type RecognizeCall struct {
	URI string
	Cfg stt.RecognitionConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is returned by the operation's Wait.
	Results []stt.Result

	// RecognizeErr, if non-nil, is returned by LongRunningRecognize.
	RecognizeErr error

	// WaitErr, if non-nil, is returned by the operation's Wait.
	WaitErr error

	// Block, when non-nil, makes Wait block until it is closed or the
	// context passed to Wait is done.
	Block chan struct{}

	calls []RecognizeCall
}

// LongRunningRecognize implements stt.Provider.
func (p *Provider) LongRunningRecognize(_ context.Context, uri string, cfg stt.RecognitionConfig) (stt.Operation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, RecognizeCall{URI: uri, Cfg: cfg})
	if p.RecognizeErr != nil {
		return nil, p.RecognizeErr
	}
	return &operation{results: p.Results, err: p.WaitErr, block: p.Block}, nil
}

// Calls returns a copy of every recorded LongRunningRecognize call.
func (p *Provider) Calls() []RecognizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RecognizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

type operation struct {
	results []stt.Result
	err     error
	block   chan struct{}
}

func (o *operation) Wait(ctx context.Context) ([]stt.Result, error) {
	if o.block != nil {
		select {
		case <-o.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.results, o.err
}

// Transcript is a convenience for building single-alternative results.
func Transcript(lines ...string) []stt.Result {
	out := make([]stt.Result, len(lines))
	for i, l := range lines {
		out[i] = stt.Result{Alternatives: []stt.Alternative{{Transcript: l}}}
	}
	return out
}
