// Package mock provides configurable test doubles for the store interfaces.
//
// Every method records its arguments; errors are injected through the
// exported *Err fields. Unlike memstore, nothing here keeps document state.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/store"
)

var (
	_ store.RecordingStore  = (*RecordingStore)(nil)
	_ store.TemplateStore   = (*TemplateStore)(nil)
	_ store.SubscriberStore = (*SubscriberStore)(nil)
)

// UpdateCall records a single UpdateRecording invocation.
type UpdateCall struct {
	ID     string
	Update store.RecordingUpdate
}

// RecordingStore is a test double for [store.RecordingStore].
type RecordingStore struct {
	mu sync.Mutex

	// GetResult is returned by GetRecording.
	GetResult store.Recording

	// GetErr, if non-nil, is returned by GetRecording.
	GetErr error

	// UpdateErr, if non-nil, is returned by UpdateRecording. The call is still
	// recorded.
	UpdateErr error

	updateCalls []UpdateCall
}

// GetRecording implements [store.RecordingStore].
func (m *RecordingStore) GetRecording(_ context.Context, id string) (store.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return store.Recording{}, m.GetErr
	}
	r := m.GetResult
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

// UpdateRecording implements [store.RecordingStore].
func (m *RecordingStore) UpdateRecording(_ context.Context, id string, u store.RecordingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, UpdateCall{ID: id, Update: u})
	return m.UpdateErr
}

// UpdateCalls returns a copy of every recorded UpdateRecording call.
func (m *RecordingStore) UpdateCalls() []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UpdateCall, len(m.updateCalls))
	copy(out, m.updateCalls)
	return out
}

// TemplateStore is a test double for [store.TemplateStore]. It returns
// Templates verbatim, without filtering.
type TemplateStore struct {
	mu sync.Mutex

	Templates []store.Template
	Err       error

	kinds []string
}

// ActiveTemplates implements [store.TemplateStore].
func (m *TemplateStore) ActiveTemplates(_ context.Context, kind string) ([]store.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Templates, nil
}

// Kinds returns the kind argument of every ActiveTemplates call.
func (m *TemplateStore) Kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.kinds))
	copy(out, m.kinds)
	return out
}

// RemoveCall records a single RemoveToken invocation.
type RemoveCall struct {
	SubscriberID string
	Token        string
}

// SubscriberStore is a test double for [store.SubscriberStore].
type SubscriberStore struct {
	mu sync.Mutex

	Subscribers []store.Subscriber
	ListErr     error

	// RemoveErr, when set, is consulted for every RemoveToken call. Returning
	// nil lets the call succeed.
	RemoveErr func(subscriberID, token string) error

	removeCalls []RemoveCall
}

// ReminderSubscribers implements [store.SubscriberStore].
func (m *SubscriberStore) ReminderSubscribers(context.Context) ([]store.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Subscribers, nil
}

// RemoveToken implements [store.SubscriberStore].
func (m *SubscriberStore) RemoveToken(_ context.Context, subscriberID, token string) error {
	m.mu.Lock()
	m.removeCalls = append(m.removeCalls, RemoveCall{SubscriberID: subscriberID, Token: token})
	fn := m.RemoveErr
	m.mu.Unlock()
	if fn != nil {
		return fn(subscriberID, token)
	}
	return nil
}

// RemoveCalls returns a copy of every recorded RemoveToken call, in call order.
func (m *SubscriberStore) RemoveCalls() []RemoveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RemoveCall, len(m.removeCalls))
	copy(out, m.removeCalls)
	return out
}
