package context

import (
	stdctx "context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	cabinetIDKey ctxKey = "cabinet_id"
	actorTypeKey ctxKey = "actor_type"
	actorIDKey   ctxKey = "actor_id"
	deliveryKey  ctxKey = "delivery_id"
)

func WithRequestID(ctx stdctx.Context, id string) stdctx.Context {
	return stdctx.WithValue(ctx, requestIDKey, strings.TrimSpace(id))
}

func RequestIDFromContext(ctx stdctx.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithCabinetID(ctx stdctx.Context, id string) stdctx.Context {
	return stdctx.WithValue(ctx, cabinetIDKey, strings.TrimSpace(id))
}

func CabinetIDFromContext(ctx stdctx.Context) string {
	return stringValue(ctx, cabinetIDKey)
}

func WithActor(ctx stdctx.Context, actorType, actorID string) stdctx.Context {
	ctx = stdctx.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return stdctx.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx stdctx.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

// WithDeliveryID tags a webhook delivery for log correlation.
func WithDeliveryID(ctx stdctx.Context, id string) stdctx.Context {
	return stdctx.WithValue(ctx, deliveryKey, strings.TrimSpace(id))
}

func DeliveryIDFromContext(ctx stdctx.Context) string {
	return stringValue(ctx, deliveryKey)
}

func stringValue(ctx stdctx.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
