// Package reminder implements the daily reminder job: pick one active
// notification template, resolve every opted-in device token, deliver the
// notification in multicast batches and prune tokens the push service
// reports as permanently dead.
package reminder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/store"
)

var (
	// ErrNoTemplates means no active template of the configured type exists.
	ErrNoTemplates = errors.New("reminder: no active templates")

	// ErrTemplateIncomplete means the chosen template lacks a title or body.
	ErrTemplateIncomplete = errors.New("reminder: template is missing title or body")
)

// Selector picks one active template uniformly at random.
type Selector struct {
	templates store.TemplateStore
	kind      string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector for templates of the given kind. rng is the
// only source of randomness; a fixed seed makes selection reproducible.
func NewSelector(templates store.TemplateStore, kind string, rng *rand.Rand) *Selector {
	if kind == "" {
		kind = store.TemplateDailyReminder
	}
	return &Selector{templates: templates, kind: kind, rng: rng}
}

// Select returns the chosen template.
//
// Templates are ordered by ID before drawing so that the pick depends only on
// the random source and the template set, not on the order the store
// returned them in.
func (s *Selector) Select(ctx context.Context) (store.Template, error) {
	tmpls, err := s.templates.ActiveTemplates(ctx, s.kind)
	if err != nil {
		return store.Template{}, fmt.Errorf("reminder: list templates: %w", err)
	}
	if len(tmpls) == 0 {
		return store.Template{}, ErrNoTemplates
	}
	tmpls = slices.Clone(tmpls)
	slices.SortFunc(tmpls, func(a, b store.Template) int { return cmp.Compare(a.ID, b.ID) })

	s.mu.Lock()
	t := tmpls[s.rng.IntN(len(tmpls))]
	s.mu.Unlock()

	if !t.Usable() {
		return t, fmt.Errorf("%w: %s", ErrTemplateIncomplete, t.ID)
	}
	return t, nil
}
