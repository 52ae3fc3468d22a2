// Package schedule fires a job once a day at a fixed UTC wall-clock time.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/vibejournal/internal/observe"
)

// DefaultTime is the default firing time, 09:00 UTC.
const DefaultTime = "09:00"

// ParseTimeOfDay parses "HH:MM" into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("schedule: parse time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Option configures a [Daily].
type Option func(*Daily)

// WithClock replaces the real clock. Tests pass a [clockwork.FakeClock].
func WithClock(c clockwork.Clock) Option {
	return func(d *Daily) { d.clock = c }
}

// Daily calls a function once per day.
type Daily struct {
	fn    func(context.Context)
	clock clockwork.Clock
	reset chan struct{}

	// armed, when set, observes every scheduled firing time.
	armed func(next time.Time)

	mu sync.Mutex
	at time.Duration
}

// NewDaily creates a trigger that calls fn every day at the given "HH:MM"
// UTC time. An empty at selects [DefaultTime].
func NewDaily(at string, fn func(context.Context), opts ...Option) (*Daily, error) {
	if at == "" {
		at = DefaultTime
	}
	off, err := ParseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New("schedule: nil job")
	}
	d := &Daily{at: off, fn: fn, clock: clockwork.NewRealClock(), reset: make(chan struct{}, 1)}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// SetTime changes the daily firing time. A pending wait is rescheduled.
func (d *Daily) SetTime(at string) error {
	off, err := ParseTimeOfDay(at)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.at = off
	d.mu.Unlock()
	select {
	case d.reset <- struct{}{}:
	default:
	}
	return nil
}

// Next returns the first firing time strictly after now.
func (d *Daily) Next(now time.Time) time.Time {
	d.mu.Lock()
	at := d.at
	d.mu.Unlock()

	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := midnight.Add(at)
	if !next.After(now) {
		next = midnight.AddDate(0, 0, 1).Add(at)
	}
	return next
}

// Run blocks until ctx is cancelled, calling the job at every firing time.
// A run that overlaps the next firing time delays it; missed firings are
// not replayed.
func (d *Daily) Run(ctx context.Context) error {
	log := observe.Logger(ctx)
	for {
		next := d.Next(d.clock.Now())
		log.Info("next daily run scheduled", "at", next)
		timer := d.clock.NewTimer(next.Sub(d.clock.Now()))
		if d.armed != nil {
			d.armed(next)
		}
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-d.reset:
			timer.Stop()
			continue
		case <-timer.Chan():
		}
		d.fn(ctx)
	}
}
