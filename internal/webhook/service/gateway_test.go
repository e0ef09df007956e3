package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	cabinetrepo "github.com/smallbiznis/cabinet/internal/cabinet/repository"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	entitlementdomain "github.com/smallbiznis/cabinet/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/cabinet/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/cabinet/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/cabinet/internal/payment/repository"
	paymentservice "github.com/smallbiznis/cabinet/internal/payment/service"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	planrepo "github.com/smallbiznis/cabinet/internal/plan/repository"
	planservice "github.com/smallbiznis/cabinet/internal/plan/service"
	"github.com/smallbiznis/cabinet/internal/processor"
	"github.com/smallbiznis/cabinet/internal/processor/mocks"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/cabinet/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/cabinet/internal/subscription/service"
	"github.com/smallbiznis/cabinet/internal/testutil"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/cabinet/internal/webhook/repository"
	"github.com/smallbiznis/cabinet/internal/webhook/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret"

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	processor *mocks.MockClient
	registry  *prometheus.Registry
	gateway   webhookdomain.Gateway
	cabinet   *cabinetdomain.Cabinet
	plan      *plandomain.Plan
	subs      subscriptiondomain.Repository
	events    webhookdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	fake := clock.NewFakeClock(baseTime)
	log := zaptest.NewLogger(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	registry := prometheus.NewRegistry()

	cabinets := cabinetrepo.Provide()
	subs := subscriptionrepo.Provide()
	events := webhookrepo.Provide()

	plans := planservice.NewService(planservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: planrepo.Provide(),
	})
	reconciler := subscriptionservice.NewReconciler(subscriptionservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: subs, CabinetRepo: cabinets,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: paymentrepo.Provide(), CabinetRepo: cabinets,
	})

	gateway := service.NewGateway(service.Params{
		DB:  conn,
		Log: log,
		Cfg: config.Config{
			StripeWebhookSecret: testSecret,
			WebhookTimeout:      5 * time.Second,
		},
		GenID:          node,
		Clock:          fake,
		Repo:           events,
		Payments:       payments,
		Plans:          plans,
		Reconciler:     reconciler,
		SubRepo:        subs,
		CabinetRepo:    cabinets,
		Processor:      client,
		WebhookMetrics: obsmetrics.NewWebhookMetrics(registry, obsmetrics.Config{ServiceName: "cabinet", Environment: "test"}),
	})

	return &fixture{
		db:        conn,
		node:      node,
		clock:     fake,
		processor: client,
		registry:  registry,
		gateway:   gateway,
		cabinet:   testutil.SeedCabinet(t, conn, node, "cabinet-martin", baseTime.AddDate(0, 0, 10), 50),
		plan:      testutil.SeedPlan(t, conn, node, "professional", 500, "patients", "export"),
		subs:      subs,
		events:    events,
	}
}

// deliver signs an event envelope the way the processor does and ingests it.
func (f *fixture) deliver(t *testing.T, id, eventType string, created time.Time, object any) (webhookdomain.Outcome, error) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testSecret,
	})
	return f.gateway.Ingest(context.Background(), signed.Payload, signed.Header)
}

func (f *fixture) subscription(t *testing.T, externalID string) *subscriptiondomain.Subscription {
	t.Helper()

	sub, err := f.subs.FindByExternalID(context.Background(), f.db, externalID)
	require.NoError(t, err)
	return sub
}

func (f *fixture) reloadCabinet(t *testing.T) *cabinetdomain.Cabinet {
	t.Helper()

	cabinet, err := cabinetrepo.Provide().FindByID(context.Background(), f.db, f.cabinet.ID)
	require.NoError(t, err)
	require.NotNil(t, cabinet)
	return cabinet
}

func (f *fixture) deliveryOutcomes(t *testing.T, eventID string) []webhookdomain.Outcome {
	t.Helper()

	records, err := f.events.ListByExternalEventID(context.Background(), f.db, eventID)
	require.NoError(t, err)
	out := make([]webhookdomain.Outcome, 0, len(records))
	for _, r := range records {
		out = append(out, r.Outcome)
	}
	return out
}

func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func subscriptionObject(id, status string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"status":               status,
		"customer":             "cus_martin",
		"cancel_at_period_end": false,
		"metadata":             metadata,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":                   "si_" + id,
				"current_period_start": baseTime.Unix(),
				"current_period_end":   baseTime.AddDate(0, 1, 0).Unix(),
				"price":                map[string]any{"id": "price_pro", "nickname": "Professional"},
			}},
		},
	}
}

func (f *fixture) processorSubscription(id, status string) billingeventdomain.Subscription {
	start, end := baseTime.Unix(), baseTime.AddDate(0, 1, 0).Unix()
	sub := billingeventdomain.Subscription{
		ID:       id,
		Status:   status,
		Customer: "cus_martin",
		Metadata: map[string]string{},
	}
	sub.Items.Data = []billingeventdomain.SubscriptionItem{{
		ID:                 "si_" + id,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		Price:              &billingeventdomain.Price{ID: "price_pro", Nickname: "Professional"},
	}}
	return sub
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"id":"evt_forged","object":"event","type":"customer.subscription.updated","data":{"object":{}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"})

	outcome, err := f.gateway.Ingest(context.Background(), signed.Payload, signed.Header)
	require.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)
	assert.Equal(t, webhookdomain.OutcomeRejected, outcome)
	assert.Empty(t, f.deliveryOutcomes(t, "evt_forged"), "unverified payloads are never stored")

	_, err = f.gateway.Ingest(context.Background(), payload, "")
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)
}

func TestIngestIgnoresUnknownKinds(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.deliver(t, "evt_unknown", "customer.created", baseTime, map[string]any{"id": "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeIgnored, outcome)
	assert.Equal(t, []webhookdomain.Outcome{webhookdomain.OutcomeIgnored}, f.deliveryOutcomes(t, "evt_unknown"))
	assert.Equal(t, 1.0, f.counter(t, "cabinet_webhook_events_total", map[string]string{
		"event_type": "customer.created",
		"outcome":    "ignored",
	}))
}

func TestTrialThenCheckoutActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := entitlementdomain.Compute(f.reloadCabinet(t), nil, nil, f.clock.Now())
	require.Equal(t, entitlementdomain.StatusTrialing, before.Status)

	f.processor.EXPECT().
		GetSubscription(gomock.Any(), "sub_123").
		Return(f.processorSubscription("sub_123", "active"), nil)

	outcome, err := f.deliver(t, "evt_checkout", "checkout.session.completed", baseTime.Add(time.Minute), map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"mode":                "subscription",
		"status":              "complete",
		"client_reference_id": f.cabinet.ID.String(),
		"customer":            "cus_martin",
		"subscription":        "sub_123",
	})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	sub := f.subscription(t, "sub_123")
	require.NotNil(t, sub)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Equal(t, f.cabinet.ID, sub.CabinetID)
	assert.Equal(t, f.plan.ID, sub.PlanID)

	cabinet := f.reloadCabinet(t)
	assert.False(t, cabinet.IsTrialActive, "trial consumed")
	assert.Equal(t, "cus_martin", cabinet.StripeCustomerID)

	current, err := f.subs.FindCurrentByCabinet(ctx, f.db, cabinet.ID)
	require.NoError(t, err)
	ent := entitlementdomain.Compute(cabinet, current, f.plan, f.clock.Now())
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status)
	assert.Equal(t, 500, ent.MaxPatients)
	assert.Equal(t, "professional", ent.PlanName)
}

func TestInvoiceFailureSoftFails(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.deliver(t, "evt_created", "customer.subscription.created", baseTime,
		subscriptionObject("sub_pd", "active", map[string]string{"cabinet_id": f.cabinet.ID.String()}))
	require.NoError(t, err)
	require.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	outcome, err = f.deliver(t, "evt_inv_failed", "invoice.payment_failed", baseTime.Add(time.Hour), map[string]any{
		"id":     "in_1",
		"object": "invoice",
		"status": "open",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_pd"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	sub := f.subscription(t, "sub_pd")
	assert.Equal(t, subscriptiondomain.StatusPastDue, sub.Status)

	ent := entitlementdomain.Compute(f.reloadCabinet(t), sub, f.plan, f.clock.Now())
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status)
	assert.True(t, ent.IsPastDue)
	assert.Equal(t, 500, ent.MaxPatients)

	// Recovery brings it back.
	outcome, err = f.deliver(t, "evt_inv_paid", "invoice.payment_succeeded", baseTime.Add(2*time.Hour), map[string]any{
		"id":           "in_2",
		"object":       "invoice",
		"subscription": "sub_pd",
	})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)
	assert.Equal(t, subscriptiondomain.StatusActive, f.subscription(t, "sub_pd").Status)
}

func TestDeletedThenStaleUpdateStaysCanceled(t *testing.T) {
	f := newFixture(t)
	metadata := map[string]string{"cabinet_id": f.cabinet.ID.String()}

	outcome, err := f.deliver(t, "evt_created", "customer.subscription.created", baseTime,
		subscriptionObject("sub_del", "active", metadata))
	require.NoError(t, err)
	require.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	deleted := subscriptionObject("sub_del", "canceled", metadata)
	deleted["canceled_at"] = baseTime.Add(2 * time.Hour).Unix()
	outcome, err = f.deliver(t, "evt_deleted", "customer.subscription.deleted", baseTime.Add(2*time.Hour), deleted)
	require.NoError(t, err)
	require.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	outcome, err = f.deliver(t, "evt_late_update", "customer.subscription.updated", baseTime.Add(time.Hour),
		subscriptionObject("sub_del", "active", metadata))
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeStale, outcome)

	sub := f.subscription(t, "sub_del")
	assert.Equal(t, subscriptiondomain.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.True(t, sub.CanceledAt.Equal(baseTime.Add(2*time.Hour)))

	ent := entitlementdomain.Compute(f.reloadCabinet(t), sub, f.plan, f.clock.Now())
	assert.NotEqual(t, entitlementdomain.StatusActive, ent.Status)
}

func TestDeletedBeforeCreatedLeavesTombstone(t *testing.T) {
	f := newFixture(t)
	metadata := map[string]string{"cabinet_id": f.cabinet.ID.String()}

	outcome, err := f.deliver(t, "evt_deleted", "customer.subscription.deleted", baseTime.Add(time.Hour),
		subscriptionObject("sub_tomb", "canceled", metadata))
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	sub := f.subscription(t, "sub_tomb")
	require.NotNil(t, sub)
	assert.Equal(t, subscriptiondomain.StatusCanceled, sub.Status)

	outcome, err = f.deliver(t, "evt_created", "customer.subscription.created", baseTime,
		subscriptionObject("sub_tomb", "active", metadata))
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeStale, outcome)
	assert.Equal(t, subscriptiondomain.StatusCanceled, f.subscription(t, "sub_tomb").Status)
}

func TestReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	object := subscriptionObject("sub_replay", "active", map[string]string{"cabinet_id": f.cabinet.ID.String()})

	for i := 0; i < 3; i++ {
		outcome, err := f.deliver(t, "evt_replay", "customer.subscription.updated", baseTime, object)
		require.NoError(t, err)
		assert.Equal(t, webhookdomain.OutcomeProcessed, outcome, "delivery %d", i+1)
	}

	var count int64
	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).Where("external_id = ?", "sub_replay").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.deliveryOutcomes(t, "evt_replay"), 3, "every delivery is logged")
}

func TestUnmappedPlanIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	object := subscriptionObject("sub_x", "active", map[string]string{"cabinet_id": f.cabinet.ID.String()})
	object["items"] = map[string]any{"object": "list", "data": []map[string]any{{
		"id":    "si_x",
		"price": map[string]any{"id": "price_x", "nickname": "Platinum"},
	}}}

	outcome, err := f.deliver(t, "evt_unmapped", "customer.subscription.created", baseTime, object)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeRejected, outcome)
	assert.Nil(t, f.subscription(t, "sub_x"), "no mutation")

	records, err := f.events.ListByExternalEventID(context.Background(), f.db, "evt_unmapped")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Error, plandomain.ErrUnmappedPlan.Error())
}

func TestMetadataPlanFallback(t *testing.T) {
	f := newFixture(t)

	object := subscriptionObject("sub_meta", "trialing", map[string]string{
		"cabinet_id": f.cabinet.ID.String(),
		"plan":       " PROFESSIONAL ",
	})
	object["items"] = map[string]any{"object": "list", "data": []map[string]any{}}
	object["current_period_start"] = baseTime.Unix()
	object["current_period_end"] = baseTime.AddDate(0, 0, 14).Unix()

	outcome, err := f.deliver(t, "evt_meta", "customer.subscription.created", baseTime, object)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	sub := f.subscription(t, "sub_meta")
	require.NotNil(t, sub)
	assert.Equal(t, f.plan.ID, sub.PlanID)
	assert.Equal(t, subscriptiondomain.StatusTrialing, sub.Status)
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.deliver(t, "evt_bad", "customer.subscription.updated", baseTime, map[string]any{
		"id":     "sub_bad",
		"object": "subscription",
	})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeRejected, outcome)
	assert.Nil(t, f.subscription(t, "sub_bad"))
}

func TestMissingTenantIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	object := subscriptionObject("sub_orphan", "active", nil)
	object["customer"] = "cus_unknown"
	outcome, err := f.deliver(t, "evt_orphan", "customer.subscription.created", baseTime, object)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeRejected, outcome)
	assert.Nil(t, f.subscription(t, "sub_orphan"))
}

func TestProcessorOutageIsRetried(t *testing.T) {
	f := newFixture(t)

	f.processor.EXPECT().
		GetSubscription(gomock.Any(), "sub_down").
		Return(billingeventdomain.Subscription{}, fmt.Errorf("%w: timeout", processor.ErrUnavailable))

	outcome, err := f.deliver(t, "evt_down", "checkout.session.completed", baseTime, map[string]any{
		"id":                  "cs_down",
		"object":              "checkout.session",
		"mode":                "subscription",
		"client_reference_id": f.cabinet.ID.String(),
		"subscription":        "sub_down",
	})
	require.ErrorIs(t, err, webhookdomain.ErrHandlerFailed)
	assert.ErrorIs(t, err, processor.ErrUnavailable)
	assert.Equal(t, webhookdomain.OutcomeFailed, outcome)
	assert.Equal(t, []webhookdomain.Outcome{webhookdomain.OutcomeFailed}, f.deliveryOutcomes(t, "evt_down"))
	assert.Equal(t, 1.0, f.counter(t, "cabinet_webhook_failures_total", map[string]string{
		"event_type": "checkout.session.completed",
	}))
}

func TestCheckoutWithoutSubscriptionIsIgnored(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.deliver(t, "evt_pay_mode", "checkout.session.completed", baseTime, map[string]any{
		"id":     "cs_pay",
		"object": "checkout.session",
		"mode":   "payment",
	})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeIgnored, outcome)
}

func TestPaymentIntentSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := &paymentdomain.Invoice{
		ID:        f.node.Generate(),
		CabinetID: f.cabinet.ID,
		Number:    "INV-0001",
		Amount:    5900,
		Currency:  "EUR",
		Status:    paymentdomain.InvoiceStatusOpen,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	require.NoError(t, f.db.Create(invoice).Error)

	intent := func(status string) map[string]any {
		return map[string]any{
			"id":                   "pi_1",
			"object":               "payment_intent",
			"amount":               5900,
			"amount_received":      5900,
			"currency":             "eur",
			"status":               status,
			"payment_method_types": []string{"sepa_debit"},
			"metadata": map[string]string{
				"cabinet_id": f.cabinet.ID.String(),
				"invoice_id": invoice.ID.String(),
			},
		}
	}

	outcome, err := f.deliver(t, "evt_pi_ok", "payment_intent.succeeded", baseTime.Add(time.Hour), intent("succeeded"))
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	// An older failure delivered late cannot regress the payment.
	outcome, err = f.deliver(t, "evt_pi_fail", "payment_intent.payment_failed", baseTime, intent("requires_payment_method"))
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	repo := paymentrepo.Provide()
	payment, err := repo.FindByIntentID(ctx, f.db, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, int64(5900), payment.Amount)

	settled, err := repo.FindInvoice(ctx, f.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.InvoiceStatusPaid, settled.Status)
	assert.Equal(t, "sepa_debit", settled.PaymentMethod)
	require.NotNil(t, settled.PaidAt)
	assert.True(t, settled.PaidAt.Equal(baseTime.Add(time.Hour)))
}

func TestSetupIntentSavesPaymentMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := cabinetrepo.Provide().AttachCustomer(ctx, f.db, f.cabinet.ID, "cus_martin", baseTime)
	require.NoError(t, err)

	outcome, err := f.deliver(t, "evt_seti", "setup_intent.succeeded", baseTime, map[string]any{
		"id":                   "seti_1",
		"object":               "setup_intent",
		"status":               "succeeded",
		"customer":             "cus_martin",
		"payment_method":       map[string]any{"id": "pm_1", "object": "payment_method"},
		"payment_method_types": []string{"card"},
	})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.OutcomeProcessed, outcome)

	method, err := paymentrepo.Provide().FindPaymentMethod(ctx, f.db, "pm_1")
	require.NoError(t, err)
	require.NotNil(t, method)
	assert.Equal(t, f.cabinet.ID, method.CabinetID)
	assert.True(t, method.IsActive)
	assert.Equal(t, "seti_1", method.ExternalSetupIntentID)
}
