package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vibejournal/pkg/store"
)

// ErrNoRecipients means no opted-in subscriber has a device token. The run
// ends without delivering anything; this is not a failure.
var ErrNoRecipients = errors.New("reminder: no recipients")

// TokenIndex maps a device token to the subscriber that owns it.
type TokenIndex map[string]string

// Recipients is the resolved audience of one run.
type Recipients struct {
	// Tokens lists every (subscriber, token) entry in subscriber order, then
	// token order within a subscriber. A token registered under several
	// subscribers appears once per subscriber.
	Tokens []string

	// Owners maps each token to its owner.
	Owners TokenIndex
}

// Resolver builds the audience from the subscriber store.
type Resolver struct {
	subscribers store.SubscriberStore
}

// NewResolver creates a Resolver.
func NewResolver(subscribers store.SubscriberStore) *Resolver {
	return &Resolver{subscribers: subscribers}
}

// Resolve lists opted-in subscribers and indexes their tokens.
//
// A token registered under more than one subscriber is listed for each of
// them and owned by the last subscriber seen. The conflict is logged since
// pruning that token will only touch the recorded owner.
func (r *Resolver) Resolve(ctx context.Context) (Recipients, error) {
	subs, err := r.subscribers.ReminderSubscribers(ctx)
	if err != nil {
		return Recipients{}, fmt.Errorf("reminder: list subscribers: %w", err)
	}

	rcpt := Recipients{Owners: make(TokenIndex)}
	for _, sub := range subs {
		if !sub.DailyReminderEnabled {
			continue
		}
		for _, tok := range sub.FCMTokens {
			if tok == "" {
				continue
			}
			rcpt.Tokens = append(rcpt.Tokens, tok)
			if prev, seen := rcpt.Owners[tok]; seen && prev != sub.ID {
				slog.Warn("device token registered to multiple subscribers",
					"token", redact(tok),
					"previous_owner", prev,
					"owner", sub.ID)
			}
			rcpt.Owners[tok] = sub.ID
		}
	}
	if len(rcpt.Tokens) == 0 {
		return Recipients{}, ErrNoRecipients
	}
	return rcpt, nil
}

// redact keeps only the tail of a token for log lines.
func redact(tok string) string {
	const keep = 6
	if len(tok) <= keep {
		return "…" + tok
	}
	return "…" + tok[len(tok)-keep:]
}
