package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/vibejournal/pkg/mood"
	"github.com/MrWong99/vibejournal/pkg/store"
)

const selectRecording = `
SELECT id, user_id, audio_path, transcription, mood, sentiment_score, sentiment_magnitude
FROM recordings`

func scanRecording(row pgx.Row) (store.Recording, error) {
	var (
		r store.Recording
		m *string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.AudioPath, &r.Transcription, &m, &r.SentimentScore, &r.SentimentMagnitude); err != nil {
		return store.Recording{}, err
	}
	if m != nil {
		r.Mood = mood.Mood(*m)
	}
	return r, nil
}

// GetRecording implements [store.RecordingStore].
func (s *Store) GetRecording(ctx context.Context, id string) (store.Recording, error) {
	r, err := scanRecording(s.pool.QueryRow(ctx, selectRecording+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Recording{}, store.ErrNotFound
	}
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: get recording %s: %w", id, err)
	}
	return r, nil
}

// UpdateRecording implements [store.RecordingStore]. All present fields are
// written by a single UPDATE statement.
func (s *Store) UpdateRecording(ctx context.Context, id string, u store.RecordingUpdate) error {
	if u.Empty() {
		return nil
	}

	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if u.Transcription != nil {
		add("transcription", *u.Transcription)
	}
	if u.Mood != nil {
		add("mood", string(*u.Mood))
	}
	if u.SentimentScore != nil {
		add("sentiment_score", *u.SentimentScore)
	}
	if u.SentimentMagnitude != nil {
		add("sentiment_magnitude", *u.SentimentMagnitude)
	}
	sets = append(sets, "updated_at = now()")

	q := "UPDATE recordings SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres store: update recording %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Watch implements [store.Watcher]. It first replays recordings that have no
// mood yet, oldest first, then delivers every recording announced on
// [NotifyChannel] until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, fn func(context.Context, store.Recording)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: watch: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("postgres store: watch: listen: %w", err)
	}

	pending, err := s.pendingRecordings(ctx)
	if err != nil {
		return err
	}
	for _, r := range pending {
		fn(ctx, r)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("postgres store: watch: wait: %w", err)
		}
		r, err := s.GetRecording(ctx, n.Payload)
		if err != nil {
			slog.Warn("postgres store: watch: load announced recording", "id", n.Payload, "err", err)
			continue
		}
		fn(ctx, r)
	}
}

func (s *Store) pendingRecordings(ctx context.Context) ([]store.Recording, error) {
	rows, err := s.pool.Query(ctx, selectRecording+` WHERE mood IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: pending recordings: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Recording, error) {
		return scanRecording(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: pending recordings: %w", err)
	}
	return recs, nil
}
