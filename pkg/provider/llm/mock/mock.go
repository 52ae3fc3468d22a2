// Package mock provides a test double for the llm.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Response: &llm.CompletionResponse{Content: "Hello!"}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider. A nil Response yields an
// empty CompletionResponse.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Err is nil.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned by Complete.
	Err error

	// ModelName is returned by Model.
	ModelName string

	calls []llm.CompletionRequest
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Response == nil {
		return &llm.CompletionResponse{}, nil
	}
	resp := *p.Response
	return &resp, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.ModelName }

// Calls returns a copy of every request passed to Complete.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}
