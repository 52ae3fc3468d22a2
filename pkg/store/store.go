// Package store defines the document-store abstractions VibeJournal reads and
// writes: recordings produced by the mobile client, notification templates
// curated by operators, and subscriber records carrying device tokens.
//
// Backends live in sub-packages (postgres, firestore, memstore). All
// implementations must be safe for concurrent use.
//
// Updates are partial: only non-nil fields of a [RecordingUpdate] are written,
// and each written field is a full overwrite. Applying the same update twice
// leaves the document unchanged, which makes the mood pipeline safe under
// at-least-once event delivery.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/vibejournal/pkg/mood"
)

// ErrNotFound is returned when a document addressed by ID does not exist.
var ErrNotFound = errors.New("store: not found")

// ─────────────────────────────────────────────────────────────────────────────
// Recordings
// ─────────────────────────────────────────────────────────────────────────────

// Recording is one user-submitted audio journal entry.
type Recording struct {
	// ID is the document key.
	ID string

	// UserID is the owner of the recording. Informational only.
	UserID string

	// AudioPath is the object path of the uploaded audio, relative to the
	// configured bucket. Empty means the upload never completed.
	AudioPath string

	// Transcription is nil until the pipeline has written it.
	Transcription *string

	// Mood is empty until the pipeline reaches a terminal state.
	Mood mood.Mood

	// SentimentScore and SentimentMagnitude are set only on a fully analysed
	// recording.
	SentimentScore     *float64
	SentimentMagnitude *float64
}

// HasAudio reports whether the recording points at an uploaded audio object.
func (r Recording) HasAudio() bool { return strings.TrimSpace(r.AudioPath) != "" }

// Terminal reports whether the recording has already been assigned a mood.
func (r Recording) Terminal() bool { return r.Mood != "" }

// RecordingUpdate is a partial overwrite of a recording. Nil fields are left
// untouched.
type RecordingUpdate struct {
	Transcription      *string
	Mood               *mood.Mood
	SentimentScore     *float64
	SentimentMagnitude *float64
}

// Empty reports whether the update would write nothing.
func (u RecordingUpdate) Empty() bool {
	return u.Transcription == nil && u.Mood == nil && u.SentimentScore == nil && u.SentimentMagnitude == nil
}

// Apply returns r with every non-nil field of u written over it.
func (u RecordingUpdate) Apply(r Recording) Recording {
	if u.Transcription != nil {
		s := *u.Transcription
		r.Transcription = &s
	}
	if u.Mood != nil {
		r.Mood = *u.Mood
	}
	if u.SentimentScore != nil {
		v := *u.SentimentScore
		r.SentimentScore = &v
	}
	if u.SentimentMagnitude != nil {
		v := *u.SentimentMagnitude
		r.SentimentMagnitude = &v
	}
	return r
}

// RecordingStore reads and updates recordings.
type RecordingStore interface {
	// GetRecording returns the recording with the given ID or [ErrNotFound].
	GetRecording(ctx context.Context, id string) (Recording, error)

	// UpdateRecording writes every non-nil field of u onto the recording in a
	// single atomic operation. An empty update is a no-op.
	UpdateRecording(ctx context.Context, id string, u RecordingUpdate) error
}

// Watcher streams newly created recordings to fn until ctx is cancelled.
//
// Implementations may replay recordings that already existed when the watch
// started; callers that must not reprocess finished work check
// [Recording.Terminal]. fn is invoked sequentially from a single goroutine.
type Watcher interface {
	Watch(ctx context.Context, fn func(context.Context, Recording)) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Notification templates
// ─────────────────────────────────────────────────────────────────────────────

// TemplateDailyReminder is the template type used by the daily reminder job.
const TemplateDailyReminder = "daily_reminder"

// Template is an operator-curated push notification message.
type Template struct {
	ID       string
	Type     string
	IsActive bool
	Title    string
	Body     string
}

// Usable reports whether both title and body are non-empty.
func (t Template) Usable() bool { return t.Title != "" && t.Body != "" }

// TemplateStore lists notification templates.
type TemplateStore interface {
	// ActiveTemplates returns every template whose type equals kind and whose
	// active flag is set. Order is unspecified.
	ActiveTemplates(ctx context.Context, kind string) ([]Template, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Subscribers
// ─────────────────────────────────────────────────────────────────────────────

// Plan names a subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Subscriber is a user account as seen by the reminder job.
type Subscriber struct {
	ID                   string
	DailyReminderEnabled bool

	// FCMTokens are the push registration tokens of the subscriber's devices.
	// The reminder job only ever removes entries from this set.
	FCMTokens []string
}

// SubscriberStore lists reminder subscribers and prunes dead device tokens.
type SubscriberStore interface {
	// ReminderSubscribers returns every subscriber with daily reminders
	// enabled. Order is unspecified.
	ReminderSubscribers(ctx context.Context) ([]Subscriber, error)

	// RemoveToken atomically removes token from the subscriber's token set.
	// Removing a token that is not present is not an error. Implementations
	// must not read-modify-write the whole set.
	RemoveToken(ctx context.Context, subscriberID, token string) error
}

// Entitlement describes the quotas granted with a plan.
type Entitlement struct {
	Plan                        Plan
	MaxCloudVibes               int
	MaxRecordingDurationMinutes int
}

// PremiumEntitlement is written when a purchase verifies.
var PremiumEntitlement = Entitlement{
	Plan:                        PlanPremium,
	MaxCloudVibes:               100000,
	MaxRecordingDurationMinutes: 60,
}

// EntitlementStore persists plan grants on subscriber documents.
type EntitlementStore interface {
	// GrantEntitlement overwrites the plan fields of the subscriber. The
	// subscriber document is created if it does not exist.
	GrantEntitlement(ctx context.Context, subscriberID string, e Entitlement) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregate
// ─────────────────────────────────────────────────────────────────────────────

// Store bundles every store interface a backend implements. Backends return
// it from their constructors so the application can wire a single value.
type Store interface {
	RecordingStore
	TemplateStore
	SubscriberStore
	EntitlementStore
	Watcher

	// Ping checks backend connectivity. Used by the readiness probe.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
