// Package logsender provides a dry-run push.Sender that logs every multicast
// instead of delivering it. Every token is reported as delivered.
package logsender

import (
	"context"
	"log/slog"

	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

var _ push.Sender = (*Sender)(nil)

// Sender logs multicasts through its logger.
type Sender struct {
	log *slog.Logger
}

// New returns a Sender. A nil logger uses slog.Default.
func New(log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{log: log}
}

// SendMulticast implements push.Sender.
func (s *Sender) SendMulticast(ctx context.Context, msg push.Message) (*push.BatchResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "dry-run multicast",
		"tokens", len(msg.Tokens),
		"title", msg.Notification.Title,
		"body", msg.Notification.Body,
	)
	out := &push.BatchResponse{Outcomes: make([]push.Outcome, len(msg.Tokens))}
	for i, tok := range msg.Tokens {
		out.Outcomes[i] = push.Outcome{Token: tok, Success: true}
	}
	out.Tally()
	return out, nil
}
