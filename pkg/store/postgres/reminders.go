package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/vibejournal/pkg/store"
)

// ActiveTemplates implements [store.TemplateStore].
func (s *Store) ActiveTemplates(ctx context.Context, kind string) ([]store.Template, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, is_active, title, body
		FROM notification_templates
		WHERE type = $1 AND is_active`, kind)
	if err != nil {
		return nil, fmt.Errorf("postgres store: active templates: %w", err)
	}
	tpls, err := pgx.CollectRows(rows, pgx.RowToStructByPos[store.Template])
	if err != nil {
		return nil, fmt.Errorf("postgres store: active templates: %w", err)
	}
	return tpls, nil
}

// ReminderSubscribers implements [store.SubscriberStore]. Subscribers are
// returned in sign-up order.
func (s *Store) ReminderSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, daily_reminder_enabled, fcm_tokens
		FROM subscribers
		WHERE daily_reminder_enabled
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: reminder subscribers: %w", err)
	}
	subs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[store.Subscriber])
	if err != nil {
		return nil, fmt.Errorf("postgres store: reminder subscribers: %w", err)
	}
	return subs, nil
}

// RemoveToken implements [store.SubscriberStore] with a single array_remove
// so concurrent removals on the same row never lose each other's writes.
func (s *Store) RemoveToken(ctx context.Context, subscriberID, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscribers SET fcm_tokens = array_remove(fcm_tokens, $2) WHERE id = $1`,
		subscriberID, token)
	if err != nil {
		return fmt.Errorf("postgres store: remove token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GrantEntitlement implements [store.EntitlementStore].
func (s *Store) GrantEntitlement(ctx context.Context, subscriberID string, e store.Entitlement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscribers (id, plan, max_cloud_vibes, max_recording_duration_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			plan = EXCLUDED.plan,
			max_cloud_vibes = EXCLUDED.max_cloud_vibes,
			max_recording_duration_minutes = EXCLUDED.max_recording_duration_minutes`,
		subscriberID, string(e.Plan), e.MaxCloudVibes, e.MaxRecordingDurationMinutes)
	if err != nil {
		return fmt.Errorf("postgres store: grant entitlement: %w", err)
	}
	return nil
}
