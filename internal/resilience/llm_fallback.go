package resilience

import (
	"context"

	"github.com/MrWong99/vibejournal/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *LLMFallback) States() map[string]State { return f.group.States() }

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model reports the primary's model. It is static metadata and does not
// take part in failover.
func (f *LLMFallback) Model() string { return f.group.Primary().Model() }
