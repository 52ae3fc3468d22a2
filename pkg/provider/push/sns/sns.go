// Package sns provides a push.Sender backed by Amazon SNS mobile push.
//
// SNS addresses devices by platform endpoint ARN, so every FCM token is first
// registered against the configured platform application
// (CreatePlatformEndpoint is idempotent for an unchanged token) and then
// published to individually. Publishes within one multicast run
// concurrently.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

const defaultConcurrency = 16

var _ push.Sender = (*Sender)(nil)

// API is the subset of the SNS client used by Sender.
type API interface {
	CreatePlatformEndpoint(ctx context.Context, in *awssns.CreatePlatformEndpointInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Option configures a Sender.
type Option func(*Sender)

// WithConcurrency bounds the number of in-flight publishes. Defaults to 16.
func WithConcurrency(n int) Option {
	return func(s *Sender) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Sender implements push.Sender on SNS.
type Sender struct {
	api         API
	platformArn string
	concurrency int
}

// New loads the default AWS configuration for region and returns a Sender
// publishing through the platform application platformArn.
func New(ctx context.Context, region, platformArn string, opts ...Option) (*Sender, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("sns: load aws config: %w", err)
	}
	return NewWithAPI(awssns.NewFromConfig(cfg), platformArn, opts...)
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, platformArn string, opts ...Option) (*Sender, error) {
	if platformArn == "" {
		return nil, errors.New("sns: platform application ARN must not be empty")
	}
	s := &Sender{api: api, platformArn: platformArn, concurrency: defaultConcurrency}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SendMulticast implements push.Sender. It never returns a whole-batch error
// for per-token failures.
func (s *Sender) SendMulticast(ctx context.Context, msg push.Message) (*push.BatchResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	payload, err := payloadFor(msg)
	if err != nil {
		return nil, fmt.Errorf("sns: encode payload: %w", err)
	}

	out := &push.BatchResponse{Outcomes: make([]push.Outcome, len(msg.Tokens))}
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, tok := range msg.Tokens {
		g.Go(func() error {
			out.Outcomes[i] = s.deliver(ctx, tok, payload)
			return nil
		})
	}
	_ = g.Wait()

	out.Tally()
	return out, nil
}

func (s *Sender) deliver(ctx context.Context, token, payload string) push.Outcome {
	o := push.Outcome{Token: token}

	ep, err := s.api.CreatePlatformEndpoint(ctx, &awssns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(s.platformArn),
		Token:                  aws.String(token),
	})
	if err != nil {
		o.Err = fmt.Errorf("sns: create endpoint: %w", err)
		o.Reason = Classify(err)
		return o
	}

	res, err := s.api.Publish(ctx, &awssns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(payload),
		TargetArn:        ep.EndpointArn,
	})
	if err != nil {
		o.Err = fmt.Errorf("sns: publish: %w", err)
		o.Reason = Classify(err)
		return o
	}

	o.Success = true
	o.MessageID = aws.ToString(res.MessageId)
	return o
}

// payloadFor renders the SNS JSON message structure with an FCM ("GCM")
// section.
func payloadFor(msg push.Message) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": msg.Notification.Title,
			"body":  msg.Notification.Body,
		},
		"data": msg.Data,
	})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(map[string]string{
		"default": msg.Notification.Body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Classify maps an SNS API error onto a push.Reason.
func Classify(err error) push.Reason {
	var (
		disabled  *types.EndpointDisabledException
		notFound  *types.NotFoundException
		invalid   *types.InvalidParameterException
		throttled *types.ThrottledException
		internal  *types.InternalErrorException
	)
	switch {
	case err == nil:
		return push.ReasonNone
	case errors.As(err, &disabled), errors.As(err, &notFound):
		return push.ReasonUnregistered
	case errors.As(err, &invalid):
		return push.ReasonInvalidArgument
	case errors.As(err, &throttled):
		return push.ReasonQuotaExceeded
	case errors.As(err, &internal):
		return push.ReasonUnavailable
	default:
		return push.ReasonUnknown
	}
}
