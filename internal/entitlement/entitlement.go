// Package entitlement verifies Google Play subscription purchases and grants
// the premium plan to the purchasing user.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/store"
)

// DefaultPackageName is the Android application whose purchases are checked.
const DefaultPackageName = "com.pranta.vibejournal"

// ErrMissingPurchase is returned when the subscription ID or purchase token
// is empty.
var ErrMissingPurchase = errors.New("entitlement: missing purchase token or subscription ID")

// acknowledged is the Play API acknowledgementState for an acknowledged
// purchase.
const acknowledged = 1

// Verifier checks whether a purchase currently entitles its owner.
type Verifier interface {
	Verify(ctx context.Context, subscriptionID, purchaseToken string) (bool, error)
}

var _ Verifier = (*PlayVerifier)(nil)

// PlayVerifier checks subscriptions with the Google Play Developer API.
type PlayVerifier struct {
	svc         *androidpublisher.Service
	packageName string
	clock       clockwork.Clock
}

// PlayOption configures a [PlayVerifier].
type PlayOption func(*PlayVerifier)

// WithClock replaces the clock used to compare expiry times.
func WithClock(c clockwork.Clock) PlayOption {
	return func(v *PlayVerifier) { v.clock = c }
}

// WithPackageName overrides [DefaultPackageName].
func WithPackageName(name string) PlayOption {
	return func(v *PlayVerifier) {
		if name != "" {
			v.packageName = name
		}
	}
}

// NewPlayVerifier creates a PlayVerifier. clientOpts are passed to the API
// client; production callers pass credentials, tests pass an endpoint.
func NewPlayVerifier(ctx context.Context, clientOpts []option.ClientOption, opts ...PlayOption) (*PlayVerifier, error) {
	clientOpts = append([]option.ClientOption{option.WithScopes(androidpublisher.AndroidpublisherScope)}, clientOpts...)
	svc, err := androidpublisher.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("entitlement: create play client: %w", err)
	}
	v := &PlayVerifier{svc: svc, packageName: DefaultPackageName, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify reports whether the subscription is acknowledged and not yet
// expired.
func (v *PlayVerifier) Verify(ctx context.Context, subscriptionID, purchaseToken string) (bool, error) {
	sub, err := v.svc.Purchases.Subscriptions.Get(v.packageName, subscriptionID, purchaseToken).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("entitlement: get subscription %s: %w", subscriptionID, err)
	}
	expiry := time.UnixMilli(sub.ExpiryTimeMillis)
	return expiry.After(v.clock.Now()) && sub.AcknowledgementState == acknowledged, nil
}

// Service verifies purchases and records the resulting plan.
type Service struct {
	verifier Verifier
	grants   store.EntitlementStore
}

// NewService creates a Service.
func NewService(v Verifier, grants store.EntitlementStore) *Service {
	return &Service{verifier: v, grants: grants}
}

// Verify checks the purchase and, when it entitles, grants
// [store.PremiumEntitlement] to userID. The boolean reports whether the
// grant was made.
func (s *Service) Verify(ctx context.Context, userID, subscriptionID, purchaseToken string) (bool, error) {
	if subscriptionID == "" || purchaseToken == "" {
		return false, ErrMissingPurchase
	}
	log := observe.Logger(ctx).With("user_id", userID, "subscription_id", subscriptionID)

	ok, err := s.verifier.Verify(ctx, subscriptionID, purchaseToken)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Warn("purchase is not valid or has expired")
		return false, nil
	}
	if err := s.grants.GrantEntitlement(ctx, userID, store.PremiumEntitlement); err != nil {
		return false, fmt.Errorf("entitlement: grant premium: %w", err)
	}
	log.Info("purchase verified, premium granted")
	return true, nil
}
