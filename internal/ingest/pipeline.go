package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"procodus.dev/drip-monitor/internal/store"
	"procodus.dev/drip-monitor/pkg/metrics"
)

// DeviceStore is the slice of the device repository the pipeline needs.
type DeviceStore interface {
	Touch(ctx context.Context, deviceID string) (*store.Device, bool, error)
}

// TelemetryStore is the slice of the telemetry repository the pipeline needs.
type TelemetryStore interface {
	Append(ctx context.Context, t *store.Telemetry) error
}

// AlertStore is the slice of the alert repository the pipeline needs.
type AlertStore interface {
	Append(ctx context.Context, a *store.Alert) error
}

// Broadcaster publishes post-ingest events to live subscribers.
type Broadcaster interface {
	BroadcastDeviceUpdate(device *store.Device, reading *store.Telemetry)
	BroadcastTelemetry(deviceID string, reading *store.Telemetry)
	BroadcastAlert(alert *store.Alert)
}

// Pipeline processes one decoded reading end-to-end: device upsert,
// telemetry append, alert derivation, broadcast. The device upsert is the
// only mutation under race; telemetry and alerts are append-only, and the
// three writes are independent (no cross-store transaction).
type Pipeline struct {
	logger      *slog.Logger
	devices     DeviceStore
	telemetry   TelemetryStore
	alerts      AlertStore
	broadcaster Broadcaster
	metrics     *metrics.IngestMetrics // Optional metrics
}

// PipelineConfig holds the configuration for the Pipeline.
type PipelineConfig struct {
	Logger      *slog.Logger
	Devices     DeviceStore
	Telemetry   TelemetryStore
	Alerts      AlertStore
	Broadcaster Broadcaster
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Devices == nil {
		return nil, errors.New("device store cannot be nil")
	}
	if cfg.Telemetry == nil {
		return nil, errors.New("telemetry store cannot be nil")
	}
	if cfg.Alerts == nil {
		return nil, errors.New("alert store cannot be nil")
	}
	if cfg.Broadcaster == nil {
		return nil, errors.New("broadcaster cannot be nil")
	}

	return &Pipeline{
		logger:      cfg.Logger,
		devices:     cfg.Devices,
		telemetry:   cfg.Telemetry,
		alerts:      cfg.Alerts,
		broadcaster: cfg.Broadcaster,
	}, nil
}

// SetMetrics sets the metrics collector for this pipeline.
func (p *Pipeline) SetMetrics(m *metrics.IngestMetrics) {
	p.metrics = m
}

// Ingest reconciles one decoded reading for a device. deviceID must
// already be canonical (uppercased). A failure at any step drops the
// message; earlier writes are not rolled back.
func (p *Pipeline) Ingest(ctx context.Context, deviceID string, reading *Reading) error {
	device, created, err := p.devices.Touch(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("device upsert failed: %w", err)
	}
	if created {
		p.logger.Info("auto-created device", "device_id", deviceID)
		if p.metrics != nil {
			p.metrics.DevicesCreated.Inc()
		}
	}

	row := &store.Telemetry{
		DeviceID:    deviceID,
		DripRate:    reading.DripRate,
		FlowStatus:  store.FlowStatus(reading.FlowStatus),
		BottleLevel: reading.BottleLevel,
		Timestamp:   reading.Timestamp,
	}
	if reading.Alert != "" {
		row.Alert = &reading.Alert
	}

	if err := p.telemetry.Append(ctx, row); err != nil {
		return fmt.Errorf("telemetry append failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ReadingsIngested.Inc()
	}

	p.broadcaster.BroadcastDeviceUpdate(device, row)
	p.broadcaster.BroadcastTelemetry(deviceID, row)

	if reading.Alert != "" {
		// One alert row per reading that carries text; duplicates are
		// intentional. The ingestion path always grades them medium.
		alert := &store.Alert{
			DeviceID: deviceID,
			Message:  reading.Alert,
			Severity: store.SeverityMedium,
		}
		if err := p.alerts.Append(ctx, alert); err != nil {
			return fmt.Errorf("alert append failed: %w", err)
		}
		if p.metrics != nil {
			p.metrics.AlertsRaised.Inc()
		}

		p.broadcaster.BroadcastAlert(alert)
		p.logger.Info("alert raised", "device_id", deviceID, "message", reading.Alert)
	}

	p.logger.Debug("reading ingested", "device_id", deviceID)
	return nil
}
