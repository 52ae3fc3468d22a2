// Package push defines the Sender interface for multicast push-notification
// backends.
//
// A multicast delivers one notification to up to [MaxMulticastTokens] device
// registration tokens and reports one [Outcome] per token, in the same order
// as the tokens were given. Outcomes carry a backend-neutral [Reason] so that
// callers can decide which failures mean the token is dead.
package push

import (
	"context"
	"errors"
)

// MaxMulticastTokens is the largest token list a single multicast may carry.
const MaxMulticastTokens = 500

// ErrTooManyTokens is returned when a Message exceeds MaxMulticastTokens.
var ErrTooManyTokens = errors.New("push: too many tokens in one multicast")

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string
	Body  string
}

// Message is one multicast request.
type Message struct {
	Tokens       []string
	Notification Notification

	// Data is an optional key/value payload delivered to the app.
	Data map[string]string
}

// Validate checks the token count.
func (m Message) Validate() error {
	if len(m.Tokens) > MaxMulticastTokens {
		return ErrTooManyTokens
	}
	return nil
}

// Reason classifies a per-token delivery failure.
type Reason int

const (
	// ReasonNone is the reason of a successful delivery.
	ReasonNone Reason = iota

	// ReasonUnregistered means the token is no longer registered with the
	// push service (app uninstalled, token rotated).
	ReasonUnregistered

	// ReasonInvalidArgument means the token is malformed or otherwise
	// rejected as invalid.
	ReasonInvalidArgument

	// ReasonQuotaExceeded means the sender was throttled.
	ReasonQuotaExceeded

	// ReasonUnavailable means the push service was temporarily unavailable.
	ReasonUnavailable

	// ReasonUnknown covers every other failure.
	ReasonUnknown
)

// String returns the wire-style name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnregistered:
		return "unregistered"
	case ReasonInvalidArgument:
		return "invalid-argument"
	case ReasonQuotaExceeded:
		return "quota-exceeded"
	case ReasonUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// TokenInvalid reports whether the failure proves the token can never be
// delivered to again.
func (r Reason) TokenInvalid() bool {
	return r == ReasonUnregistered || r == ReasonInvalidArgument
}

// Outcome is the delivery result for a single token.
type Outcome struct {
	Token     string
	Success   bool
	MessageID string
	Reason    Reason
	Err       error
}

// BatchResponse is the result of one multicast. Outcomes[i] belongs to
// Message.Tokens[i].
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Outcomes     []Outcome
}

// Tally recomputes SuccessCount and FailureCount from Outcomes.
func (b *BatchResponse) Tally() {
	b.SuccessCount, b.FailureCount = 0, 0
	for _, o := range b.Outcomes {
		if o.Success {
			b.SuccessCount++
		} else {
			b.FailureCount++
		}
	}
}

// Sender delivers multicast notifications.
//
// An error return means the whole multicast failed and no per-token outcomes
// are available. Implementations must be safe for concurrent use.
type Sender interface {
	SendMulticast(ctx context.Context, msg Message) (*BatchResponse, error)
}
