package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/vibejournal/internal/observe"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and hands every new valid revision to a
// callback. Polling works for bind-mounted ConfigMaps and secrets, where
// filesystem notifications are unreliable.
//
// Invalid revisions are logged and skipped; the last valid config stays
// current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	clock    clockwork.Clock

	mu      sync.Mutex
	current *Config
	seen    revision
}

// revision identifies one version of the file on disk.
type revision struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherClock replaces the real clock driving the poll ticker.
func WithWatcherClock(c clockwork.Clock) WatcherOption {
	return func(w *Watcher) { w.clock = c }
}

// NewWatcher loads path once and returns a Watcher holding the result.
// Polling starts with [Watcher.Run]. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, rev, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, rev
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	log := observe.Logger(ctx).With("path", w.path)

	info, err := os.Stat(w.path)
	if err != nil {
		log.Warn("config watcher: cannot stat file", "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, rev, err := w.read()
	if err != nil {
		log.Warn("config watcher: invalid revision, keeping previous config", "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	touched := rev.sum == w.seen.sum
	w.seen = rev
	if !touched {
		w.current = cfg
	}
	w.mu.Unlock()
	if touched {
		return
	}

	log.Info("config watcher: configuration reloaded")
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads and validates the file and identifies its revision.
func (w *Watcher) read() (*Config, revision, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
