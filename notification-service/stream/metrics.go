package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics describes live delivery.
type Metrics struct {
	Connections  prometheus.Gauge
	Delivered    prometheus.Counter
	SendFailures prometheus.Counter
	RelayErrors  prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tarot",
			Subsystem: "stream",
			Name:      "connections",
			Help:      "Open push channels on this instance.",
		}),
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tarot",
			Subsystem: "stream",
			Name:      "delivered_total",
			Help:      "Messages queued on a push channel.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tarot",
			Subsystem: "stream",
			Name:      "send_failures_total",
			Help:      "Channels dropped because they could not accept a message.",
		}),
		RelayErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tarot",
			Subsystem: "stream",
			Name:      "relay_errors_total",
			Help:      "Failures publishing to or reading from the cross-instance relay.",
		}),
	}
}
