package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tarot"

// Outcomes recorded for consumed records.
const (
	outcomeHandled     = "handled"
	outcomeSkipped     = "skipped"
	outcomeDecodeError = "decode_error"
	outcomeRetried     = "retried"
)

// Metrics groups the pipeline's Prometheus collectors.
type Metrics struct {
	Published       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Consumed        *prometheus.CounterVec
	HandleDuration  *prometheus.HistogramVec
	DeadLetters     *prometheus.CounterVec
	Backoff         *prometheus.GaugeVec
	Restarts        *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "published_total",
			Help:      "Events acknowledged by the broker.",
		}, []string{"topic"}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "failures_total",
			Help:      "Events dropped because the broker did not acknowledge them in time.",
		}, []string{"topic"}),
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "records_total",
			Help:      "Consumed records by outcome.",
		}, []string{"topic", "outcome"}),
		HandleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "handle_duration_seconds",
			Help:      "Time spent in event handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		DeadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "dead_letters_total",
			Help:      "Records written to the dead-letter sink.",
		}, []string{"topic", "reason"}),
		Backoff: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "backoff_seconds",
			Help:      "Current reconnect backoff of the subscription, zero when healthy.",
		}, []string{"topic"}),
		Restarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "restarts_total",
			Help:      "Subscription restarts after broker failures.",
		}, []string{"topic"}),
	}
}
