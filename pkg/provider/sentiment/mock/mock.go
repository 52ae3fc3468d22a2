// Package mock provides a test double for sentiment.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
)

var _ sentiment.Provider = (*Provider)(nil)

// Provider is a mock implementation of sentiment.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Analyze when Err is nil. It may be nil.
	Result *sentiment.Result

	// Err, if non-nil, is returned by Analyze.
	Err error

	texts []string
}

// Analyze implements sentiment.Provider.
func (p *Provider) Analyze(_ context.Context, text string) (*sentiment.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Result, nil
}

// Texts returns every text passed to Analyze.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// Scored returns a Result with both values present.
func Scored(score, magnitude float64) *sentiment.Result {
	return &sentiment.Result{Score: sentiment.Float64(score), Magnitude: sentiment.Float64(magnitude)}
}
