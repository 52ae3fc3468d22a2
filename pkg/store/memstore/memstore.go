// Package memstore is an in-memory implementation of store.Store. It backs
// local development runs and tests that need real set semantics for device
// tokens.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory document store. Subscribers and templates
// are returned in insertion order. The zero value is not usable; call [New].
type Store struct {
	mu sync.RWMutex

	recordings map[string]store.Recording
	history    map[string][]store.RecordingUpdate

	templates []store.Template

	subscribers  map[string]*subscriber
	subscriberIx []string

	watchers []chan store.Recording
}

type subscriber struct {
	store.Subscriber
	entitlement store.Entitlement
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		recordings:  make(map[string]store.Recording),
		history:     make(map[string][]store.RecordingUpdate),
		subscribers: make(map[string]*subscriber),
	}
}

// PutRecording inserts or replaces a recording and notifies active watchers.
func (s *Store) PutRecording(r store.Recording) {
	s.mu.Lock()
	s.recordings[r.ID] = r
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()

	for _, ch := range watchers {
		ch <- r
	}
}

// PutTemplate appends a template.
func (s *Store) PutTemplate(t store.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
}

// PutSubscriber inserts or replaces a subscriber. Replacing keeps the original
// insertion position.
func (s *Store) PutSubscriber(sub store.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.FCMTokens = slices.Clone(sub.FCMTokens)
	if existing, ok := s.subscribers[sub.ID]; ok {
		existing.Subscriber = sub
		return
	}
	s.subscribers[sub.ID] = &subscriber{Subscriber: sub}
	s.subscriberIx = append(s.subscriberIx, sub.ID)
}

// Subscriber returns a copy of the subscriber with the given ID.
func (s *Store) Subscriber(id string) (store.Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return store.Subscriber{}, false
	}
	out := sub.Subscriber
	out.FCMTokens = slices.Clone(out.FCMTokens)
	return out, true
}

// Entitlement returns the plan fields last granted to a subscriber.
func (s *Store) Entitlement(id string) (store.Entitlement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return store.Entitlement{}, false
	}
	return sub.entitlement, true
}

// Updates returns every update applied to the recording, oldest first.
func (s *Store) Updates(id string) []store.RecordingUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history[id])
}

// GetRecording implements [store.RecordingStore].
func (s *Store) GetRecording(_ context.Context, id string) (store.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recordings[id]
	if !ok {
		return store.Recording{}, store.ErrNotFound
	}
	return r, nil
}

// UpdateRecording implements [store.RecordingStore].
func (s *Store) UpdateRecording(_ context.Context, id string, u store.RecordingUpdate) error {
	if u.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[id]
	if !ok {
		return store.ErrNotFound
	}
	s.recordings[id] = u.Apply(r)
	s.history[id] = append(s.history[id], u)
	return nil
}

// Watch implements [store.Watcher]. Only recordings put after Watch is called
// are delivered.
func (s *Store) Watch(ctx context.Context, fn func(context.Context, store.Recording)) error {
	ch := make(chan store.Recording, 16)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.watchers = slices.DeleteFunc(s.watchers, func(c chan store.Recording) bool { return c == ch })
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-ch:
			fn(ctx, r)
		}
	}
}

// ActiveTemplates implements [store.TemplateStore].
func (s *Store) ActiveTemplates(_ context.Context, kind string) ([]store.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Template
	for _, t := range s.templates {
		if t.Type == kind && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// ReminderSubscribers implements [store.SubscriberStore].
func (s *Store) ReminderSubscribers(_ context.Context) ([]store.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Subscriber
	for _, id := range s.subscriberIx {
		sub := s.subscribers[id]
		if !sub.DailyReminderEnabled {
			continue
		}
		c := sub.Subscriber
		c.FCMTokens = slices.Clone(c.FCMTokens)
		out = append(out, c)
	}
	return out, nil
}

// RemoveToken implements [store.SubscriberStore].
func (s *Store) RemoveToken(_ context.Context, subscriberID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[subscriberID]
	if !ok {
		return store.ErrNotFound
	}
	sub.FCMTokens = slices.DeleteFunc(sub.FCMTokens, func(t string) bool { return t == token })
	return nil
}

// GrantEntitlement implements [store.EntitlementStore].
func (s *Store) GrantEntitlement(_ context.Context, subscriberID string, e store.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[subscriberID]
	if !ok {
		sub = &subscriber{Subscriber: store.Subscriber{ID: subscriberID}}
		s.subscribers[subscriberID] = sub
		s.subscriberIx = append(s.subscriberIx, subscriberID)
	}
	sub.entitlement = e
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
