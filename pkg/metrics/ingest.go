package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the telemetry ingestion
// pipeline.
type IngestMetrics struct {
	ReadingsIngested prometheus.Counter
	MessagesDropped  *prometheus.CounterVec
	AlertsRaised     prometheus.Counter
	DevicesCreated   prometheus.Counter
	IngestDuration   prometheus.Histogram
}

// NewIngestMetrics creates and registers ingestion pipeline metrics.
func NewIngestMetrics(namespace string) *IngestMetrics {
	m := &IngestMetrics{
		ReadingsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "readings_ingested_total",
				Help:      "Total number of telemetry readings durably stored",
			},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "messages_dropped_total",
				Help:      "Total number of bus messages dropped without state change",
			},
			[]string{"reason"},
		),
		AlertsRaised: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "alerts_raised_total",
				Help:      "Total number of alert records created",
			},
		),
		DevicesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "devices_created_total",
				Help:      "Total number of devices auto-created on first reading",
			},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "End-to-end duration of ingesting one bus message",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	MustRegister(
		m.ReadingsIngested,
		m.MessagesDropped,
		m.AlertsRaised,
		m.DevicesCreated,
		m.IngestDuration,
	)

	return m
}
