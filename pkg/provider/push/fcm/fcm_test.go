package fcm

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"

	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

var (
	errGone = errors.New("requested entity was not found")
	errBad  = errors.New("invalid registration token")
	errBusy = errors.New("service unavailable")
)

type fakeClient struct {
	msg  *messaging.MulticastMessage
	resp *messaging.BatchResponse
	err  error
}

func (f *fakeClient) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.msg = msg
	return f.resp, f.err
}

func fakeClassify(err error) push.Reason {
	switch {
	case errors.Is(err, errGone):
		return push.ReasonUnregistered
	case errors.Is(err, errBad):
		return push.ReasonInvalidArgument
	default:
		return push.ReasonUnknown
	}
}

func TestSender_SendMulticast(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 3,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "m1"},
			{Error: errGone},
			{Error: errBad},
			{Error: errBusy},
		},
	}}
	s := &Sender{client: fc, classify: fakeClassify}

	resp, err := s.SendMulticast(context.Background(), push.Message{
		Tokens:       []string{"a", "b", "c", "d"},
		Notification: push.Notification{Title: "Time to reflect", Body: "How was your day?"},
	})
	if err != nil {
		t.Fatalf("SendMulticast: %v", err)
	}

	if fc.msg.Notification.Title != "Time to reflect" || len(fc.msg.Tokens) != 4 {
		t.Errorf("sent message = %+v", fc.msg)
	}
	if resp.SuccessCount != 1 || resp.FailureCount != 3 {
		t.Errorf("counts = %d/%d, want 1/3", resp.SuccessCount, resp.FailureCount)
	}

	want := []push.Reason{push.ReasonNone, push.ReasonUnregistered, push.ReasonInvalidArgument, push.ReasonUnknown}
	for i, o := range resp.Outcomes {
		if o.Token != fc.msg.Tokens[i] {
			t.Errorf("outcome %d token = %q", i, o.Token)
		}
		if o.Reason != want[i] {
			t.Errorf("outcome %d reason = %s, want %s", i, o.Reason, want[i])
		}
	}
	if resp.Outcomes[0].MessageID != "m1" {
		t.Errorf("message ID = %q", resp.Outcomes[0].MessageID)
	}
}

func TestSender_ShortResponse(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{resp: &messaging.BatchResponse{Responses: []*messaging.SendResponse{{Success: true}}}}
	s := &Sender{client: fc, classify: fakeClassify}

	resp, err := s.SendMulticast(context.Background(), push.Message{Tokens: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("SendMulticast: %v", err)
	}
	if resp.Outcomes[1].Success || resp.Outcomes[1].Reason != push.ReasonUnknown {
		t.Errorf("missing response should be an unknown failure, got %+v", resp.Outcomes[1])
	}
}

func TestSender_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("auth failed")
	s := &Sender{client: &fakeClient{err: boom}, classify: fakeClassify}
	if _, err := s.SendMulticast(context.Background(), push.Message{Tokens: []string{"a"}}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}

	tokens := make([]string, push.MaxMulticastTokens+1)
	if _, err := s.SendMulticast(context.Background(), push.Message{Tokens: tokens}); !errors.Is(err, push.ErrTooManyTokens) {
		t.Errorf("err = %v, want ErrTooManyTokens", err)
	}
}

func TestClassify_Nil(t *testing.T) {
	t.Parallel()
	if Classify(nil) != push.ReasonNone {
		t.Error("nil error should classify as none")
	}
	if Classify(errors.New("plain")) != push.ReasonUnknown {
		t.Error("plain error should classify as unknown")
	}
}
