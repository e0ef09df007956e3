package domain

import (
	"context"
	"errors"
)

// Gateway is the single entry point for processor deliveries.
type Gateway interface {
	// Ingest verifies, decodes and dispatches one delivery. A nil error means
	// the delivery must be acknowledged whatever the outcome.
	Ingest(ctx context.Context, payload []byte, signature string) (Outcome, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	// ErrHandlerFailed wraps transient handler failures the sender should retry.
	ErrHandlerFailed = errors.New("webhook_handler_failed")
	// ErrEventIgnored is returned by handlers that found nothing to do.
	ErrEventIgnored = errors.New("event_ignored")
)
