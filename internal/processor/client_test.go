package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *StripeClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := client.New("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return newStripeClient(api, zap.NewNop())
}

func TestGetSubscription(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/subscriptions/sub_42"))
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_42",
			"object": "subscription",
			"status": "active",
			"customer": "cus_9",
			"metadata": {"cabinet_id": "7"},
			"items": {"object": "list", "data": [{
				"id": "si_1",
				"object": "subscription_item",
				"current_period_start": 1767225600,
				"current_period_end": 1769904000,
				"price": {"id": "price_1", "object": "price", "nickname": "Professional"}
			}]}
		}`))
	})

	sub, err := c.GetSubscription(context.Background(), "sub_42")
	require.NoError(t, err)
	assert.Equal(t, "sub_42", sub.ID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "cus_9", sub.Customer.String())
	assert.Equal(t, "Professional", sub.PriceNickname())
	start, end := sub.Period()
	assert.Equal(t, int64(1767225600), start.Unix())
	assert.Equal(t, int64(1769904000), end.Unix())
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetSubscriptionErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/sub_missing") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	})

	_, err := c.GetSubscription(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetSubscription(context.Background(), "sub_broken")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.GetSubscription(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
