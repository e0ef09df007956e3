package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("cabinet_id", "123"),
		attribute.String("patient_id", "456"),
		attribute.String("event_type", "invoice.payment_failed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "cabinet_id" && attrs[1].Key != "cabinet_id" {
		t.Fatalf("expected cabinet_id to be retained")
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookEvent(context.Background(), "invoice.payment_failed", "processed")
	m.RecordUnmappedPlan(context.Background(), "customer.subscription.updated")
	m.RecordEntitlementDenied(context.Background(), "patients", "EXPIRED")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "cabinet"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordWebhookEvent(context.Background(), "checkout.session.completed", "processed")
	m.RecordStaleSnapshot(context.Background(), "customer.subscription.updated")
}
