// Package processor talks to the payment processor API.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
	"github.com/smallbiznis/cabinet/internal/config"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

// Client reads authoritative objects from the processor.
type Client interface {
	GetSubscription(ctx context.Context, id string) (billingeventdomain.Subscription, error)
}

var (
	// ErrUnavailable wraps every transport or API failure; callers retry.
	ErrUnavailable      = errors.New("processor_unavailable")
	ErrNotFound         = errors.New("processor_object_not_found")
	ErrInvalidReference = errors.New("invalid_processor_reference")
)

// StripeClient holds its own API handle; the package level stripe.Key is never set.
type StripeClient struct {
	api   *client.API
	log   *zap.Logger
	group singleflight.Group
}

func NewStripeClient(cfg config.Config, log *zap.Logger) Client {
	return newStripeClient(client.New(cfg.StripeSecretKey, nil), log)
}

func newStripeClient(api *client.API, log *zap.Logger) *StripeClient {
	return &StripeClient{
		api: api,
		log: log.Named("processor.stripe"),
	}
}

// GetSubscription fetches the subscription. Concurrent deliveries for the same
// id share one API call.
func (c *StripeClient) GetSubscription(ctx context.Context, id string) (billingeventdomain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return billingeventdomain.Subscription{}, ErrInvalidReference
	}

	v, err, shared := c.group.Do(id, func() (any, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		return c.api.Subscriptions.Get(id, params)
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return billingeventdomain.Subscription{}, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
		}
		return billingeventdomain.Subscription{}, fmt.Errorf("%w: get subscription %s: %v", ErrUnavailable, id, err)
	}
	if shared {
		c.log.Debug("subscription fetch shared", zap.String("subscription_id", id))
	}

	return toSubscription(v.(*stripe.Subscription))
}

// toSubscription re-reads the SDK object through the webhook schema so both
// paths validate the same way.
func toSubscription(sub *stripe.Subscription) (billingeventdomain.Subscription, error) {
	if sub == nil {
		return billingeventdomain.Subscription{}, ErrNotFound
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return billingeventdomain.Subscription{}, err
	}
	return billingeventdomain.Decode[billingeventdomain.Subscription](billingeventdomain.Event{
		ID:     sub.ID,
		Kind:   billingeventdomain.KindSubscriptionUpdated,
		Object: raw,
	})
}
