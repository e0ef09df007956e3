package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	obsctx "github.com/smallbiznis/cabinet/internal/observability/context"
	obsmetrics "github.com/smallbiznis/cabinet/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/cabinet/internal/payment/domain"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"github.com/smallbiznis/cabinet/internal/processor"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        webhookdomain.Repository
	Payments    paymentdomain.Service
	Plans       plandomain.Service
	Reconciler  subscriptiondomain.Reconciler
	SubRepo     subscriptiondomain.Repository
	CabinetRepo cabinetdomain.Repository
	Processor   processor.Client

	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	WebhookMetrics *obsmetrics.WebhookMetrics `optional:"true"`
}

type Gateway struct {
	db             *gorm.DB
	log            *zap.Logger
	secret         string
	timeout        time.Duration
	genID          *snowflake.Node
	clock          clock.Clock
	repo           webhookdomain.Repository
	handlers       map[billingeventdomain.Kind]Handler
	obsMetrics     *obsmetrics.Metrics
	webhookMetrics *obsmetrics.WebhookMetrics
}

func NewGateway(p Params) webhookdomain.Gateway {
	log := p.Log.Named("webhook.gateway")
	h := &handlers{
		db:          p.DB,
		log:         log,
		clock:       p.Clock,
		genID:       p.GenID,
		payments:    p.Payments,
		plans:       p.Plans,
		reconciler:  p.Reconciler,
		subRepo:     p.SubRepo,
		cabinetRepo: p.CabinetRepo,
		processor:   p.Processor,
		obsMetrics:  p.ObsMetrics,
	}

	timeout := p.Cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Gateway{
		db:             p.DB,
		log:            log,
		secret:         p.Cfg.StripeWebhookSecret,
		timeout:        timeout,
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		handlers:       newRegistry(h),
		obsMetrics:     p.ObsMetrics,
		webhookMetrics: p.WebhookMetrics,
	}
}

func (g *Gateway) Ingest(ctx context.Context, payload []byte, signature string) (webhookdomain.Outcome, error) {
	receivedAt := g.clock.Now().UTC()
	deliveryID := ulid.Make().String()
	ctx = obsctx.WithDeliveryID(ctx, deliveryID)
	log := g.log.With(zap.String("delivery_id", deliveryID))

	raw, err := webhook.ConstructEventWithOptions(payload, signature, g.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn("webhook signature rejected", zap.Error(err))
		g.webhookMetrics.ObserveDelivery("", string(webhookdomain.OutcomeRejected), g.clock.Now().Sub(receivedAt))
		return webhookdomain.OutcomeRejected, fmt.Errorf("%w: %v", webhookdomain.ErrInvalidSignature, err)
	}

	eventType := string(raw.Type)
	log = log.With(zap.String("event_id", raw.ID), zap.String("event_type", eventType))

	record := &webhookdomain.DeliveryRecord{
		ID:              g.genID.Generate(),
		DeliveryID:      deliveryID,
		ExternalEventID: raw.ID,
		EventType:       eventType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      receivedAt.Truncate(time.Second),
	}

	kind, ok := billingeventdomain.ParseKind(eventType)
	if !ok {
		log.Debug("webhook event type ignored")
		g.finish(ctx, log, record, webhookdomain.OutcomeIgnored, nil)
		return webhookdomain.OutcomeIgnored, nil
	}

	evt := billingeventdomain.Event{
		ID:      raw.ID,
		Kind:    kind,
		Created: time.Unix(raw.Created, 0).UTC(),
	}
	if raw.Data != nil {
		evt.Object = raw.Data.Raw
	}

	handlerCtx, cancel := context.WithTimeout(ctx, g.timeout)
	err = g.handlers[kind](handlerCtx, evt)
	cancel()

	outcome := classify(err)
	switch outcome {
	case webhookdomain.OutcomeProcessed:
		log.Info("webhook event processed")
	case webhookdomain.OutcomeIgnored:
		log.Info("webhook event had nothing to apply", zap.Error(err))
	case webhookdomain.OutcomeStale:
		log.Info("webhook event older than stored state", zap.Error(err))
	case webhookdomain.OutcomeRejected:
		log.Warn("webhook event acknowledged without changes", zap.Error(err))
	default:
		log.Error("webhook handler failed", zap.Error(err))
		g.webhookMetrics.IncFailure(eventType, err)
	}

	g.finish(ctx, log, record, outcome, err)
	if outcome == webhookdomain.OutcomeFailed {
		return outcome, fmt.Errorf("%w: %s: %w", webhookdomain.ErrHandlerFailed, eventType, err)
	}
	return outcome, nil
}

// finish writes the delivery log and metrics. Both are best effort.
func (g *Gateway) finish(ctx context.Context, log *zap.Logger, record *webhookdomain.DeliveryRecord, outcome webhookdomain.Outcome, cause error) {
	processedAt := g.clock.Now().UTC().Truncate(time.Second)
	record.Outcome = outcome
	record.ProcessedAt = &processedAt
	if cause != nil {
		record.Error = truncate(cause.Error(), 512)
	}

	elapsed := g.clock.Now().Sub(record.ReceivedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	g.webhookMetrics.ObserveDelivery(record.EventType, string(outcome), elapsed)
	g.obsMetrics.RecordWebhookEvent(ctx, record.EventType, string(outcome))

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := g.repo.Insert(logCtx, g.db, record); err != nil {
		log.Warn("webhook delivery log write failed", zap.Error(err))
	}
}

// classify decides whether an error is acknowledged. Only conditions a
// redelivery cannot change are acknowledged; everything else is retried.
func classify(err error) webhookdomain.Outcome {
	switch {
	case err == nil:
		return webhookdomain.OutcomeProcessed
	case errors.Is(err, webhookdomain.ErrEventIgnored):
		return webhookdomain.OutcomeIgnored
	case errors.Is(err, subscriptiondomain.ErrStaleEvent):
		return webhookdomain.OutcomeStale
	case isDataQuality(err):
		return webhookdomain.OutcomeRejected
	default:
		return webhookdomain.OutcomeFailed
	}
}

var dataQualityErrors = []error{
	billingeventdomain.ErrInvalidPayload,
	plandomain.ErrUnmappedPlan,
	subscriptiondomain.ErrMissingTenantReference,
	subscriptiondomain.ErrUnmappedStatus,
	subscriptiondomain.ErrInvalidSnapshot,
	paymentdomain.ErrMissingTenantReference,
	paymentdomain.ErrInvalidPayment,
	paymentdomain.ErrInvalidPaymentMethod,
	processor.ErrNotFound,
	processor.ErrInvalidReference,
}

func isDataQuality(err error) bool {
	for _, target := range dataQualityErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
