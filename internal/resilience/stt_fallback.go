package resilience

import (
	"context"

	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across several
// recognition backends.
//
// Long-running recognition usually fails while waiting rather than at
// submission, so failover covers both: the returned Operation submits to and
// waits on each backend in turn until one produces results.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *STTFallback) States() map[string]State { return f.group.States() }

// LongRunningRecognize implements [stt.Provider]. No backend is contacted
// until Wait is called; the context passed to Wait bounds the whole chain.
func (f *STTFallback) LongRunningRecognize(_ context.Context, uri string, cfg stt.RecognitionConfig) (stt.Operation, error) {
	return &fallbackOp{group: f.group, uri: uri, cfg: cfg}, nil
}

type fallbackOp struct {
	group *FallbackGroup[stt.Provider]
	uri   string
	cfg   stt.RecognitionConfig
}

func (o *fallbackOp) Wait(ctx context.Context) ([]stt.Result, error) {
	return ExecuteWithResult(ctx, o.group, func(p stt.Provider) ([]stt.Result, error) {
		op, err := p.LongRunningRecognize(ctx, o.uri, o.cfg)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
}
