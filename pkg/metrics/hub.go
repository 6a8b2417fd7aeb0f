package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics contains Prometheus metrics for the broadcast hub.
type HubMetrics struct {
	Subscribers     prometheus.Gauge
	EventsDelivered *prometheus.CounterVec
	SlowDrops       prometheus.Counter
}

// NewHubMetrics creates and registers broadcast hub metrics.
func NewHubMetrics(namespace string) *HubMetrics {
	m := &HubMetrics{
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "hub",
				Name:      "subscribers",
				Help:      "Number of currently connected real-time subscribers",
			},
		),
		EventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hub",
				Name:      "events_delivered_total",
				Help:      "Total number of events delivered to subscribers",
			},
			[]string{"event"},
		),
		SlowDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hub",
				Name:      "slow_subscriber_drops_total",
				Help:      "Total number of subscribers dropped for not keeping up",
			},
		),
	}

	MustRegister(m.Subscribers, m.EventsDelivered, m.SlowDrops)

	return m
}
