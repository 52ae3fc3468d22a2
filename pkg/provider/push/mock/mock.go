// Package mock provides a test double for push.Sender.
//
// By default every token is delivered. Set Reasons to fail specific tokens
// with a given reason, or BatchErr to fail whole multicasts.
package mock

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

var _ push.Sender = (*Sender)(nil)

// Sender is a mock implementation of push.Sender.
type Sender struct {
	mu sync.Mutex

	// Reasons maps a token to the failure reason reported for it.
	Reasons map[string]push.Reason

	// BatchErr, when set, is consulted with the zero-based call index; a
	// non-nil return fails that whole multicast.
	BatchErr func(call int) error

	calls []push.Message
}

// SendMulticast implements push.Sender.
func (s *Sender) SendMulticast(_ context.Context, msg push.Message) (*push.BatchResponse, error) {
	s.mu.Lock()
	idx := len(s.calls)
	msg.Tokens = slices.Clone(msg.Tokens)
	s.calls = append(s.calls, msg)
	batchErr := s.BatchErr
	reasons := s.Reasons
	s.mu.Unlock()

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if batchErr != nil {
		if err := batchErr(idx); err != nil {
			return nil, err
		}
	}

	out := &push.BatchResponse{Outcomes: make([]push.Outcome, len(msg.Tokens))}
	for i, tok := range msg.Tokens {
		if r, ok := reasons[tok]; ok && r != push.ReasonNone {
			out.Outcomes[i] = push.Outcome{Token: tok, Reason: r, Err: errors.New(r.String())}
			continue
		}
		out.Outcomes[i] = push.Outcome{Token: tok, Success: true}
	}
	out.Tally()
	return out, nil
}

// Calls returns a copy of every message passed to SendMulticast.
func (s *Sender) Calls() []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}
