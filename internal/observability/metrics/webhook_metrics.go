package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WebhookReasonDeadlineExceeded     = "deadline_exceeded"
	WebhookReasonDBLockTimeout        = "db_lock_timeout"
	WebhookReasonSerializationFailure = "serialization_failure"
	WebhookReasonUniqueViolation      = "unique_violation"
	WebhookReasonConnection           = "connection"
	WebhookReasonUnknown              = "unknown"
)

// WebhookMetrics captures webhook ingestion and delivery-log retention health.
type WebhookMetrics struct {
	deliveries  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	prunedRows  prometheus.Counter
	pruneErrors *prometheus.CounterVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the singleton webhook metrics registry.
func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

// WebhookWithConfig returns the singleton webhook metrics registry using config labels.
func WebhookWithConfig(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = NewWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

// NewWebhookMetrics registers a fresh set of collectors on registerer.
func NewWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cabinet"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cabinet_webhook_events_total",
		Help:        "Webhook deliveries by event type and outcome.",
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cabinet_webhook_duration_seconds",
		Help:        "Webhook handling latency, bounded by the sender's response deadline.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"event_type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cabinet_webhook_failures_total",
		Help:        "Webhook handler failures returned to the sender for retry.",
		ConstLabels: constLabels,
	}, []string{"event_type", "reason"})
	prunedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cabinet_webhook_events_pruned_total",
		Help:        "Delivery log rows removed by retention.",
		ConstLabels: constLabels,
	})
	pruneErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cabinet_webhook_prune_errors_total",
		Help:        "Delivery log retention failures by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(
		deliveries,
		duration,
		failures,
		prunedRows,
		pruneErrors,
	)

	return &WebhookMetrics{
		deliveries:  deliveries,
		duration:    duration,
		failures:    failures,
		prunedRows:  prunedRows,
		pruneErrors: pruneErrors,
	}
}

// ObserveDelivery records a handled delivery.
func (m *WebhookMetrics) ObserveDelivery(eventType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	eventType = normalizeEventType(eventType)
	m.deliveries.WithLabelValues(eventType, outcome).Inc()
	m.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// IncFailure counts a delivery that will be retried by the sender.
func (m *WebhookMetrics) IncFailure(eventType string, err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(normalizeEventType(eventType), ClassifyFailureReason(err)).Inc()
}

func (m *WebhookMetrics) AddPruned(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.prunedRows.Add(float64(count))
}

func (m *WebhookMetrics) IncPruneError(err error) {
	if m == nil || err == nil {
		return
	}
	m.pruneErrors.WithLabelValues(ClassifyFailureReason(err)).Inc()
}

// normalizeEventType keeps the label set bounded; unrecognized types share one bucket.
func normalizeEventType(eventType string) string {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return "unknown"
	}
	return eventType
}

// ClassifyFailureReason maps handler errors to low-cardinality reasons.
func ClassifyFailureReason(err error) string {
	if err == nil {
		return WebhookReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WebhookReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return WebhookReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "55P03":
			return WebhookReasonDBLockTimeout
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return WebhookReasonSerializationFailure
		case pgErr.Code == "23505":
			return WebhookReasonUniqueViolation
		case strings.HasPrefix(pgErr.Code, "08"):
			return WebhookReasonConnection
		}
	}
	return WebhookReasonUnknown
}
