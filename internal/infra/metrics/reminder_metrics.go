package metrics

import (
	"time"

	"subscription_reminder_bot/internal/domain/subscription"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReminderMetrics records sweep runs and per-channel delivery outcomes.
type ReminderMetrics struct {
	deliveries     *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	sweepBatch     prometheus.Gauge
	paymentsMarked prometheus.Counter
}

// NewReminderMetrics registers the reminder collectors plus the Go runtime
// collectors on registry.
func NewReminderMetrics(registry *prometheus.Registry) *ReminderMetrics {
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deliveries := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Reminder deliveries by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	sweepDuration := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_sweep_duration_seconds",
			Help:    "Time spent in one reminder sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 6), // 10ms .. ~10s
		},
	)

	sweepBatch := promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "reminder_sweep_processed",
			Help: "Subscriptions processed by the last sweep",
		},
	)

	paymentsMarked := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "payments_marked_paid_total",
			Help: "Payments confirmed through mark-as-paid links",
		},
	)

	return &ReminderMetrics{
		deliveries:     deliveries,
		sweepDuration:  sweepDuration,
		sweepBatch:     sweepBatch,
		paymentsMarked: paymentsMarked,
	}
}

func (m *ReminderMetrics) ObserveDelivery(channel subscription.Channel, status string) {
	m.deliveries.WithLabelValues(string(channel), status).Inc()
}

func (m *ReminderMetrics) ObserveSweep(d time.Duration, processed int) {
	m.sweepDuration.Observe(d.Seconds())
	m.sweepBatch.Set(float64(processed))
}

func (m *ReminderMetrics) IncPaymentMarked() {
	m.paymentsMarked.Inc()
}
