// Package firestore implements store.Store on Google Cloud Firestore, the
// document database the mobile client writes recordings into.
//
// Documents use the client's camelCase field names. Device tokens are an
// array field pruned with [firestore.ArrayRemove], which the server applies
// atomically. New recordings are observed with a collection snapshot
// listener.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MrWong99/vibejournal/pkg/mood"
	"github.com/MrWong99/vibejournal/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Collections names the Firestore collections the store reads.
type Collections struct {
	Recordings  string
	Templates   string
	Subscribers string
}

// DefaultCollections matches the mobile client's layout.
var DefaultCollections = Collections{
	Recordings:  "vibes",
	Templates:   "notification_templates",
	Subscribers: "users",
}

// Option configures a [Store].
type Option func(*Store)

// WithCollections overrides the collection names. Empty names keep their
// defaults.
func WithCollections(c Collections) Option {
	return func(s *Store) {
		if c.Recordings != "" {
			s.cols.Recordings = c.Recordings
		}
		if c.Templates != "" {
			s.cols.Templates = c.Templates
		}
		if c.Subscribers != "" {
			s.cols.Subscribers = c.Subscribers
		}
	}
}

// WithClientOptions passes options (credentials, endpoint) to the Firestore
// client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *Store) { s.clientOpts = append(s.clientOpts, opts...) }
}

// Store is a Firestore-backed [store.Store].
type Store struct {
	client     *firestore.Client
	cols       Collections
	clientOpts []option.ClientOption
}

// New creates a Firestore client for projectID. When FIRESTORE_EMULATOR_HOST
// is set the client talks to the emulator.
func New(ctx context.Context, projectID string, opts ...Option) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore store: project ID must not be empty")
	}
	s := &Store{cols: DefaultCollections}
	for _, o := range opts {
		o(s)
	}
	client, err := firestore.NewClient(ctx, projectID, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore store: new client: %w", err)
	}
	s.client = client
	return s, nil
}

type recordingDoc struct {
	UserID             string   `firestore:"userId"`
	AudioPath          string   `firestore:"audioPath"`
	Transcription      *string  `firestore:"transcription"`
	Mood               *string  `firestore:"mood"`
	SentimentScore     *float64 `firestore:"sentimentScore"`
	SentimentMagnitude *float64 `firestore:"sentimentMagnitude"`
}

func recordingFrom(snap *firestore.DocumentSnapshot) (store.Recording, error) {
	var d recordingDoc
	if err := snap.DataTo(&d); err != nil {
		return store.Recording{}, err
	}
	r := store.Recording{
		ID:                 snap.Ref.ID,
		UserID:             d.UserID,
		AudioPath:          d.AudioPath,
		Transcription:      d.Transcription,
		SentimentScore:     d.SentimentScore,
		SentimentMagnitude: d.SentimentMagnitude,
	}
	if d.Mood != nil {
		r.Mood = mood.Mood(*d.Mood)
	}
	return r, nil
}

// GetRecording implements [store.RecordingStore].
func (s *Store) GetRecording(ctx context.Context, id string) (store.Recording, error) {
	snap, err := s.client.Collection(s.cols.Recordings).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return store.Recording{}, store.ErrNotFound
	}
	if err != nil {
		return store.Recording{}, fmt.Errorf("firestore store: get recording %s: %w", id, err)
	}
	r, err := recordingFrom(snap)
	if err != nil {
		return store.Recording{}, fmt.Errorf("firestore store: decode recording %s: %w", id, err)
	}
	return r, nil
}

// recordingUpdates translates u into Firestore field updates.
func recordingUpdates(u store.RecordingUpdate) []firestore.Update {
	var ups []firestore.Update
	if u.Transcription != nil {
		ups = append(ups, firestore.Update{Path: "transcription", Value: *u.Transcription})
	}
	if u.Mood != nil {
		ups = append(ups, firestore.Update{Path: "mood", Value: string(*u.Mood)})
	}
	if u.SentimentScore != nil {
		ups = append(ups, firestore.Update{Path: "sentimentScore", Value: *u.SentimentScore})
	}
	if u.SentimentMagnitude != nil {
		ups = append(ups, firestore.Update{Path: "sentimentMagnitude", Value: *u.SentimentMagnitude})
	}
	return ups
}

// UpdateRecording implements [store.RecordingStore]. The fields are written
// in one Update call, which Firestore applies atomically.
func (s *Store) UpdateRecording(ctx context.Context, id string, u store.RecordingUpdate) error {
	ups := recordingUpdates(u)
	if len(ups) == 0 {
		return nil
	}
	_, err := s.client.Collection(s.cols.Recordings).Doc(id).Update(ctx, ups)
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("firestore store: update recording %s: %w", id, err)
	}
	return nil
}

// Watch implements [store.Watcher]. The first snapshot reports every existing
// document as added, so existing recordings are replayed before new ones.
func (s *Store) Watch(ctx context.Context, fn func(context.Context, store.Recording)) error {
	it := s.client.Collection(s.cols.Recordings).Snapshots(ctx)
	defer it.Stop()

	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("firestore store: watch: %w", err)
		}
		for _, ch := range qs.Changes {
			if ch.Kind != firestore.DocumentAdded {
				continue
			}
			r, err := recordingFrom(ch.Doc)
			if err != nil {
				slog.Warn("firestore store: watch: decode recording", "id", ch.Doc.Ref.ID, "err", err)
				continue
			}
			fn(ctx, r)
		}
	}
}

type templateDoc struct {
	Type     string `firestore:"type"`
	IsActive bool   `firestore:"isActive"`
	Title    string `firestore:"title"`
	Body     string `firestore:"body"`
}

// ActiveTemplates implements [store.TemplateStore].
func (s *Store) ActiveTemplates(ctx context.Context, kind string) ([]store.Template, error) {
	snaps, err := s.client.Collection(s.cols.Templates).
		Where("type", "==", kind).
		Where("isActive", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore store: active templates: %w", err)
	}
	out := make([]store.Template, 0, len(snaps))
	for _, snap := range snaps {
		var d templateDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("firestore store: decode template %s: %w", snap.Ref.ID, err)
		}
		out = append(out, store.Template{
			ID:       snap.Ref.ID,
			Type:     d.Type,
			IsActive: d.IsActive,
			Title:    d.Title,
			Body:     d.Body,
		})
	}
	return out, nil
}

type subscriberDoc struct {
	DailyReminderEnabled bool     `firestore:"dailyReminderEnabled"`
	FCMTokens            []string `firestore:"fcmTokens"`
}

// ReminderSubscribers implements [store.SubscriberStore].
func (s *Store) ReminderSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	snaps, err := s.client.Collection(s.cols.Subscribers).
		Where("dailyReminderEnabled", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore store: reminder subscribers: %w", err)
	}
	out := make([]store.Subscriber, 0, len(snaps))
	for _, snap := range snaps {
		var d subscriberDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("firestore store: decode subscriber %s: %w", snap.Ref.ID, err)
		}
		out = append(out, store.Subscriber{
			ID:                   snap.Ref.ID,
			DailyReminderEnabled: d.DailyReminderEnabled,
			FCMTokens:            d.FCMTokens,
		})
	}
	return out, nil
}

// RemoveToken implements [store.SubscriberStore].
func (s *Store) RemoveToken(ctx context.Context, subscriberID, token string) error {
	_, err := s.client.Collection(s.cols.Subscribers).Doc(subscriberID).Update(ctx, []firestore.Update{
		{Path: "fcmTokens", Value: firestore.ArrayRemove(token)},
	})
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("firestore store: remove token: %w", err)
	}
	return nil
}

// GrantEntitlement implements [store.EntitlementStore].
func (s *Store) GrantEntitlement(ctx context.Context, subscriberID string, e store.Entitlement) error {
	_, err := s.client.Collection(s.cols.Subscribers).Doc(subscriberID).Set(ctx, map[string]any{
		"plan":                        string(e.Plan),
		"maxCloudVibes":               e.MaxCloudVibes,
		"maxRecordingDurationMinutes": e.MaxRecordingDurationMinutes,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore store: grant entitlement: %w", err)
	}
	return nil
}

// Ping reads at most one template document.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.cols.Templates).Limit(1).Documents(ctx).GetAll()
	return err
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}
