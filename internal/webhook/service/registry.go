package service

import (
	"context"

	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
)

// Handler applies one verified event.
type Handler func(ctx context.Context, evt billingeventdomain.Event) error

// typed decodes the event object into T before calling fn, so handlers only
// ever see validated payloads.
func typed[T billingeventdomain.Payload](fn func(ctx context.Context, evt billingeventdomain.Event, payload T) error) Handler {
	return func(ctx context.Context, evt billingeventdomain.Event) error {
		payload, err := billingeventdomain.Decode[T](evt)
		if err != nil {
			return err
		}
		return fn(ctx, evt, payload)
	}
}

func newRegistry(h *handlers) map[billingeventdomain.Kind]Handler {
	registry := map[billingeventdomain.Kind]Handler{
		billingeventdomain.KindPaymentIntentSucceeded:   typed(h.paymentIntent),
		billingeventdomain.KindPaymentIntentFailed:      typed(h.paymentIntent),
		billingeventdomain.KindInvoicePaymentSucceeded:  typed(h.invoicePayment),
		billingeventdomain.KindInvoicePaymentFailed:     typed(h.invoicePayment),
		billingeventdomain.KindSubscriptionCreated:      typed(h.subscriptionChanged),
		billingeventdomain.KindSubscriptionUpdated:      typed(h.subscriptionChanged),
		billingeventdomain.KindSubscriptionDeleted:      typed(h.subscriptionDeleted),
		billingeventdomain.KindSetupIntentSucceeded:     typed(h.setupIntentSucceeded),
		billingeventdomain.KindCheckoutSessionCompleted: typed(h.checkoutCompleted),
	}
	for _, kind := range billingeventdomain.Kinds() {
		if _, ok := registry[kind]; !ok {
			panic("webhook: no handler registered for " + kind.String())
		}
	}
	return registry
}
