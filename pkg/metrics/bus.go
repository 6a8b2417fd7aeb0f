package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusMetrics contains Prometheus metrics for the MQTT bus client.
type BusMetrics struct {
	MessagesReceived  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	ConnectionStatus  prometheus.Gauge
	Reconnects        prometheus.Counter
}

// NewBusMetrics creates and registers bus client metrics.
func NewBusMetrics(namespace string) *BusMetrics {
	m := &BusMetrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "messages_received_total",
				Help:      "Total number of messages received from the broker",
			},
			[]string{"topic_pattern"},
		),
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "messages_published_total",
				Help:      "Total number of messages published to the broker",
			},
			[]string{"kind"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "publish_failures_total",
				Help:      "Total number of failed publishes",
			},
			[]string{"kind", "reason"},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "connection_status",
				Help:      "Current broker connection status (1=connected, 0=disconnected)",
			},
		),
		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "reconnects_total",
				Help:      "Total number of broker reconnections",
			},
		),
	}

	MustRegister(
		m.MessagesReceived,
		m.MessagesPublished,
		m.PublishFailures,
		m.ConnectionStatus,
		m.Reconnects,
	)

	return m
}
