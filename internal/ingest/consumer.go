package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/drip-monitor/pkg/bus"
	"procodus.dev/drip-monitor/pkg/metrics"
)

// Consumer subscribes to the wildcard telemetry filter and feeds each
// message through the pipeline. Failures are contained per message: the
// listener never stops, and failed messages are dropped without retry.
type Consumer struct {
	logger    *slog.Logger
	bus       bus.ClientInterface
	pipeline  *Pipeline
	namespace string
	metrics   *metrics.IngestMetrics // Optional metrics
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger    *slog.Logger
	Bus       bus.ClientInterface
	Pipeline  *Pipeline
	Namespace string
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Bus == nil {
		return nil, errors.New("bus client cannot be nil")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = bus.DefaultNamespace
	}

	return &Consumer{
		logger:    cfg.Logger,
		bus:       cfg.Bus,
		pipeline:  cfg.Pipeline,
		namespace: namespace,
	}, nil
}

// SetMetrics sets the metrics collector for this consumer.
func (c *Consumer) SetMetrics(m *metrics.IngestMetrics) {
	c.metrics = m
}

// Start subscribes to every device's telemetry sub-topic. Each message is
// processed end-to-end on its own goroutine; messages for the same device
// may be in flight concurrently, which the device upsert tolerates.
func (c *Consumer) Start(ctx context.Context) error {
	pattern := bus.TelemetryPattern(c.namespace)

	err := c.bus.Subscribe(pattern, func(topic string, payload []byte) {
		go c.handleMessage(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	c.logger.Info("consumer started", "pattern", pattern)
	return nil
}

// handleMessage processes a single bus message.
func (c *Consumer) handleMessage(ctx context.Context, topic string, payload []byte) {
	var timer *prometheus.Timer
	if c.metrics != nil {
		timer = prometheus.NewTimer(c.metrics.IngestDuration)
		defer timer.ObserveDuration()
	}

	deviceID, telemetry, ok := bus.ParseDeviceTopic(topic)
	if !ok {
		c.logger.Error("invalid topic format, dropping message", "topic", topic)
		c.drop("bad_topic")
		return
	}
	if !telemetry {
		// Other device sub-topics (commands, acks) are not ours.
		return
	}

	deviceID = strings.ToUpper(deviceID)

	reading, err := DecodeReading(payload)
	if err != nil {
		c.logger.Error("dropping malformed telemetry",
			"topic", topic,
			"device_id", deviceID,
			"error", err,
		)
		c.drop("malformed_payload")
		return
	}

	if err := c.pipeline.Ingest(ctx, deviceID, reading); err != nil {
		// At-least-once is the ceiling of the delivery model: no retry,
		// no dead-letter. The message is lost.
		c.logger.Error("failed to ingest reading, dropping message",
			"device_id", deviceID,
			"error", err,
		)
		c.drop("store_error")
		return
	}
}

func (c *Consumer) drop(reason string) {
	if c.metrics != nil {
		c.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
}
