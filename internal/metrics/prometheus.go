package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tickguard"

var (
	eventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Telemetry events accepted by an ingestion surface",
		},
		[]string{"source", "type"},
	)

	eventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Telemetry payloads dropped before dispatch",
		},
		[]string{"source", "reason"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent in detection handlers",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	handlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Detection handler failures, panics included",
		},
		[]string{"type"},
	)

	findingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings persisted by the detectors",
		},
		[]string{"kind", "severity"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alerts by outcome: sent, suppressed or failed",
		},
		[]string{"kind", "outcome"},
	)

	retentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Records removed by the retention sweeper",
		},
		[]string{"table"},
	)

	serverTPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_tps",
			Help:      "Latest reported ticks per second per server",
		},
		[]string{"server"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_breaker_state",
			Help:      "Notification sink circuit state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"sink"},
	)
)

func RecordEvent(source, eventType string) {
	eventsReceived.WithLabelValues(source, eventType).Inc()
}

func RecordRejected(source, reason string) {
	eventsRejected.WithLabelValues(source, reason).Inc()
}

func RecordHandler(eventType string, took time.Duration, err error) {
	handlerDuration.WithLabelValues(eventType).Observe(took.Seconds())
	if err != nil {
		handlerErrors.WithLabelValues(eventType).Inc()
	}
}

func RecordFinding(kind, severity string) {
	findingsTotal.WithLabelValues(kind, severity).Inc()
}

func RecordNotification(kind, outcome string) {
	notifications.WithLabelValues(kind, outcome).Inc()
}

func RecordRetention(table string, n int64) {
	if n > 0 {
		retentionDeleted.WithLabelValues(table).Add(float64(n))
	}
}

func SetBreakerState(sink string, state int) {
	breakerState.WithLabelValues(sink).Set(float64(state))
}
