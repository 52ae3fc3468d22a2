// Package postgres is a PostgreSQL-backed implementation of store.Store.
//
// Recordings, notification templates and subscribers each live in their own
// table. Device tokens are stored as a TEXT[] column so pruning a token is a
// single atomic array_remove. New recordings are announced on the
// "recording_created" channel by an AFTER INSERT trigger, which [Store.Watch]
// consumes with LISTEN.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying new recording IDs.
const NotifyChannel = "recording_created"

const ddlRecordings = `
CREATE TABLE IF NOT EXISTS recordings (
    id                  TEXT              PRIMARY KEY,
    user_id             TEXT              NOT NULL DEFAULT '',
    audio_path          TEXT              NOT NULL DEFAULT '',
    transcription       TEXT,
    mood                TEXT,
    sentiment_score     DOUBLE PRECISION,
    sentiment_magnitude DOUBLE PRECISION,
    created_at          TIMESTAMPTZ       NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_pending
    ON recordings (created_at) WHERE mood IS NULL;

CREATE OR REPLACE FUNCTION notify_recording_created() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('recording_created', NEW.id);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS recordings_notify_created ON recordings;
CREATE TRIGGER recordings_notify_created
    AFTER INSERT ON recordings
    FOR EACH ROW EXECUTE FUNCTION notify_recording_created();
`

const ddlTemplates = `
CREATE TABLE IF NOT EXISTS notification_templates (
    id         TEXT        PRIMARY KEY,
    type       TEXT        NOT NULL,
    is_active  BOOLEAN     NOT NULL DEFAULT false,
    title      TEXT        NOT NULL DEFAULT '',
    body       TEXT        NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_notification_templates_type_active
    ON notification_templates (type, is_active);
`

const ddlSubscribers = `
CREATE TABLE IF NOT EXISTS subscribers (
    id                             TEXT        PRIMARY KEY,
    daily_reminder_enabled         BOOLEAN     NOT NULL DEFAULT false,
    fcm_tokens                     TEXT[]      NOT NULL DEFAULT '{}',
    plan                           TEXT        NOT NULL DEFAULT 'free',
    max_cloud_vibes                INTEGER     NOT NULL DEFAULT 0,
    max_recording_duration_minutes INTEGER     NOT NULL DEFAULT 0,
    created_at                     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_subscribers_daily_reminder
    ON subscribers (created_at) WHERE daily_reminder_enabled;
`

// Migrate creates every table, index and trigger the store needs. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []struct {
		name string
		ddl  string
	}{
		{"recordings", ddlRecordings},
		{"notification_templates", ddlTemplates},
		{"subscribers", ddlSubscribers},
	} {
		if _, err := pool.Exec(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", stmt.name, err)
		}
	}
	return nil
}
