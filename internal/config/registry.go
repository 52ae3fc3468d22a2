package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/audio"
	"github.com/MrWong99/vibejournal/pkg/provider/llm"
	"github.com/MrWong99/vibejournal/pkg/provider/push"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
	"github.com/MrWong99/vibejournal/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Deps carries already-built collaborators a factory may need: transcription
// backends that download audio use Audio, LLM-scored sentiment uses LLM.
type Deps struct {
	Audio audio.Source
	LLM   llm.Provider
}

// Factory constructs a provider of type T from its configuration entry.
type Factory[T any] func(ctx context.Context, entry ProviderEntry, deps Deps) (T, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       map[string]Factory[stt.Provider]
	sentiment map[string]Factory[sentiment.Provider]
	llm       map[string]Factory[llm.Provider]
	push      map[string]Factory[push.Sender]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       make(map[string]Factory[stt.Provider]),
		sentiment: make(map[string]Factory[sentiment.Provider]),
		llm:       make(map[string]Factory[llm.Provider]),
		push:      make(map[string]Factory[push.Sender]),
	}
}

// RegisterSTT registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterSentiment registers a sentiment provider factory under name.
func (r *Registry) RegisterSentiment(name string, f Factory[sentiment.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentiment[name] = f
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterPush registers a push sender factory under name.
func (r *Registry) RegisterPush(name string, f Factory[push.Sender]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push[name] = f
}

// CreateSTT instantiates a transcription provider using the factory
// registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(ctx context.Context, entry ProviderEntry, deps Deps) (stt.Provider, error) {
	return create(r, r.stt, "stt", ctx, entry, deps)
}

// CreateSentiment instantiates a sentiment provider.
func (r *Registry) CreateSentiment(ctx context.Context, entry ProviderEntry, deps Deps) (sentiment.Provider, error) {
	return create(r, r.sentiment, "sentiment", ctx, entry, deps)
}

// CreateLLM instantiates an LLM provider.
func (r *Registry) CreateLLM(ctx context.Context, entry ProviderEntry, deps Deps) (llm.Provider, error) {
	return create(r, r.llm, "llm", ctx, entry, deps)
}

// CreatePush instantiates a push sender.
func (r *Registry) CreatePush(ctx context.Context, entry ProviderEntry, deps Deps) (push.Sender, error) {
	return create(r, r.push, "push", ctx, entry, deps)
}

func create[T any](r *Registry, m map[string]Factory[T], kind string, ctx context.Context, entry ProviderEntry, deps Deps) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(ctx, entry, deps)
}
