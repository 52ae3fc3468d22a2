package resilience

import (
	"context"

	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
)

// SentimentFallback implements [sentiment.Provider] with failover across
// several analysis backends.
type SentimentFallback struct {
	group *FallbackGroup[sentiment.Provider]
}

var _ sentiment.Provider = (*SentimentFallback)(nil)

// NewSentimentFallback creates a [SentimentFallback] with primary as the
// preferred backend.
func NewSentimentFallback(primary sentiment.Provider, primaryName string, cfg FallbackConfig) *SentimentFallback {
	return &SentimentFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *SentimentFallback) AddFallback(name string, provider sentiment.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *SentimentFallback) States() map[string]State { return f.group.States() }

// Analyze implements [sentiment.Provider].
func (f *SentimentFallback) Analyze(ctx context.Context, text string) (*sentiment.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(p sentiment.Provider) (*sentiment.Result, error) {
		return p.Analyze(ctx, text)
	})
}
