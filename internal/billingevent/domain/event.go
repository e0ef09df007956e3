package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidPayload marks a signed event whose object does not match the
	// schema of its kind. It is never retried.
	ErrInvalidPayload = errors.New("invalid_event_payload")
	ErrUnknownKind    = errors.New("unknown_event_kind")
)

var validate = validator.New()

// Event is a verified processor event of a known kind.
type Event struct {
	ID      string
	Kind    Kind
	Created time.Time
	Object  json.RawMessage
}

// Payload is the set of schemas an event object decodes into.
type Payload interface {
	PaymentIntent | Invoice | Subscription | CheckoutSession | SetupIntent
}

// Decode parses and validates the event object as T.
func Decode[T Payload](evt Event) (T, error) {
	var out T
	if len(evt.Object) == 0 {
		return out, fmt.Errorf("%w: %s has no object", ErrInvalidPayload, evt.Kind)
	}
	if err := json.Unmarshal(evt.Object, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, evt.Kind, err)
	}
	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, evt.Kind, err)
	}
	return out, nil
}
