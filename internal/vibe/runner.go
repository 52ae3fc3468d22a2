package vibe

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/store"
)

// DefaultConcurrency is the number of recordings processed at once by a
// [Runner].
const DefaultConcurrency = 4

// Runner feeds recordings from a [store.Watcher] into a [Pipeline].
//
// Watchers may replay recordings that were already processed, and the same
// recording may arrive from both the watcher and the HTTP event endpoint.
// Runner drops recordings that already carry a mood and recordings that are
// currently being processed.
type Runner struct {
	pipeline    *Pipeline
	concurrency int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewRunner creates a Runner. A concurrency below one selects
// [DefaultConcurrency].
func NewRunner(p *Pipeline, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		pipeline:    p,
		concurrency: concurrency,
		inFlight:    make(map[string]struct{}),
	}
}

// Run watches w until ctx is cancelled, then waits for recordings already
// handed to the pipeline to finish.
func (r *Runner) Run(ctx context.Context, w store.Watcher) error {
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	err := w.Watch(ctx, func(ctx context.Context, rec store.Recording) {
		if !r.claim(rec) {
			return
		}
		// Go blocks while the limit is reached, which throttles the watcher.
		g.Go(func() error {
			defer r.release(rec.ID)
			r.process(context.WithoutCancel(ctx), rec)
			return nil
		})
	})
	_ = g.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("vibe: watch recordings: %w", err)
	}
	return nil
}

// Submit processes rec synchronously unless it is terminal or already in
// flight. The boolean reports whether the pipeline ran; when it did not, the
// outcome is [OutcomeSkipped].
func (r *Runner) Submit(ctx context.Context, rec store.Recording) (Outcome, bool, error) {
	if !r.claim(rec) {
		return OutcomeSkipped, false, nil
	}
	defer r.release(rec.ID)
	outcome, err := r.pipeline.Process(ctx, rec)
	return outcome, true, err
}

func (r *Runner) process(ctx context.Context, rec store.Recording) {
	if _, err := r.pipeline.Process(ctx, rec); err != nil {
		observe.Logger(ctx).Error("recording processing failed", "recording_id", rec.ID, "err", err)
	}
}

func (r *Runner) claim(rec store.Recording) bool {
	if rec.Terminal() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[rec.ID]; busy {
		return false
	}
	r.inFlight[rec.ID] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}
