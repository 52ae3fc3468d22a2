// Package fcm provides a push.Sender backed by Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

var _ push.Sender = (*Sender)(nil)

// multicaster is satisfied by *messaging.Client.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Sender implements push.Sender on FCM.
type Sender struct {
	client   multicaster
	classify func(error) push.Reason
}

// New initialises a Firebase app for projectID (empty uses the project of
// the default credentials) and returns a Sender using its messaging client.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Sender, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging client: %w", err)
	}
	return &Sender{client: client, classify: Classify}, nil
}

// SendMulticast implements push.Sender.
func (s *Sender) SendMulticast(ctx context.Context, msg push.Message) (*push.BatchResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if len(msg.Tokens) == 0 {
		return &push.BatchResponse{}, nil
	}

	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: msg.Tokens,
		Notification: &messaging.Notification{
			Title: msg.Notification.Title,
			Body:  msg.Notification.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("fcm: send multicast: %w", err)
	}

	out := &push.BatchResponse{Outcomes: make([]push.Outcome, len(msg.Tokens))}
	for i, tok := range msg.Tokens {
		o := push.Outcome{Token: tok}
		if i < len(resp.Responses) && resp.Responses[i] != nil {
			r := resp.Responses[i]
			o.Success = r.Success
			o.MessageID = r.MessageID
			if !r.Success {
				o.Err = r.Error
				o.Reason = s.classify(r.Error)
			}
		} else {
			o.Reason = push.ReasonUnknown
			o.Err = fmt.Errorf("fcm: no response for token index %d", i)
		}
		out.Outcomes[i] = o
	}
	out.Tally()
	return out, nil
}

// Classify maps an FCM send error onto a push.Reason.
func Classify(err error) push.Reason {
	switch {
	case err == nil:
		return push.ReasonNone
	case messaging.IsUnregistered(err):
		return push.ReasonUnregistered
	case messaging.IsInvalidArgument(err):
		return push.ReasonInvalidArgument
	case messaging.IsQuotaExceeded(err):
		return push.ReasonQuotaExceeded
	case messaging.IsUnavailable(err):
		return push.ReasonUnavailable
	default:
		return push.ReasonUnknown
	}
}
