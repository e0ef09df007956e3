// Package domain defines the closed set of processor events the engine consumes
// and their typed payload schemas.
package domain

// Kind identifies one processor event type the engine reacts to.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPaymentIntentSucceeded
	KindPaymentIntentFailed
	KindInvoicePaymentSucceeded
	KindInvoicePaymentFailed
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindSetupIntentSucceeded
	KindCheckoutSessionCompleted
)

var kindNames = [...]string{
	KindUnknown:                  "unknown",
	KindPaymentIntentSucceeded:   "payment_intent.succeeded",
	KindPaymentIntentFailed:      "payment_intent.payment_failed",
	KindInvoicePaymentSucceeded:  "invoice.payment_succeeded",
	KindInvoicePaymentFailed:     "invoice.payment_failed",
	KindSubscriptionCreated:      "customer.subscription.created",
	KindSubscriptionUpdated:      "customer.subscription.updated",
	KindSubscriptionDeleted:      "customer.subscription.deleted",
	KindSetupIntentSucceeded:     "setup_intent.succeeded",
	KindCheckoutSessionCompleted: "checkout.session.completed",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for i, name := range kindNames {
		if Kind(i) == KindUnknown {
			continue
		}
		out[name] = Kind(i)
	}
	return out
}()

// ParseKind maps a processor event type. ok is false for every type outside
// the closed set.
func ParseKind(eventType string) (Kind, bool) {
	kind, ok := kindsByName[eventType]
	return kind, ok
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Kinds lists every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for i := range kindNames {
		if Kind(i) != KindUnknown {
			out = append(out, Kind(i))
		}
	}
	return out
}
