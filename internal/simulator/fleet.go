package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/drip-monitor/pkg/bus"
)

// Fleet manages a set of simulated devices and publishes their readings
// to the bus on a fixed interval.
type Fleet struct {
	logger     *slog.Logger
	bus        bus.ClientInterface
	namespace  string
	interval   time.Duration
	devices    []*Device
	generators map[string]*Generator
}

// FleetConfig holds the configuration for the Fleet.
type FleetConfig struct {
	Logger *slog.Logger

	// Bus client used for publishing
	Bus bus.ClientInterface

	// Topic namespace, defaults to bus.DefaultNamespace
	Namespace string

	// Publish interval per device, defaults to 2s
	Interval time.Duration

	// Number of simulated devices, defaults to 3
	DeviceCount int
}

// NewFleet creates a Fleet with generated devices.
func NewFleet(cfg *FleetConfig) (*Fleet, error) {
	if cfg == nil {
		return nil, errors.New("fleet config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Bus == nil {
		return nil, errors.New("bus client cannot be nil")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = bus.DefaultNamespace
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.DeviceCount <= 0 {
		cfg.DeviceCount = 3
	}

	devices := make([]*Device, 0, cfg.DeviceCount)
	generators := make(map[string]*Generator, cfg.DeviceCount)
	for range cfg.DeviceCount {
		device := NewDevice()
		if device == nil {
			return nil, errors.New("failed to generate device")
		}
		devices = append(devices, device)
		generators[device.DeviceID] = NewGenerator(device.DeviceID)
	}

	return &Fleet{
		logger:     cfg.Logger,
		bus:        cfg.Bus,
		namespace:  cfg.Namespace,
		interval:   cfg.Interval,
		devices:    devices,
		generators: generators,
	}, nil
}

// Devices returns the simulated devices.
func (f *Fleet) Devices() []*Device {
	return f.devices
}

// Run publishes one reading per device every interval until the context
// is canceled. Publish failures are logged and skipped; the broker link
// reconnects in the background.
func (f *Fleet) Run(ctx context.Context) error {
	f.logger.Info("starting simulated fleet",
		"devices", len(f.devices),
		"interval", f.interval.String(),
	)
	for _, device := range f.devices {
		f.logger.Info("simulating device",
			"device_id", device.DeviceID,
			"ward", device.Ward,
			"room", device.Room,
		)
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("simulated fleet stopped")
			return ctx.Err()
		case now := <-ticker.C:
			f.Tick(ctx, now)
		}
	}
}

// Tick publishes one reading for every device.
func (f *Fleet) Tick(ctx context.Context, now time.Time) {
	for _, device := range f.devices {
		if err := f.publishReading(ctx, device.DeviceID, now); err != nil {
			f.logger.Warn("failed to publish reading",
				"device_id", device.DeviceID,
				"error", err,
			)
		}
	}
}

func (f *Fleet) publishReading(ctx context.Context, deviceID string, now time.Time) error {
	reading := f.generators[deviceID].Next(now)

	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	topic := bus.TelemetryTopic(f.namespace, deviceID)
	if err := f.bus.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("failed to publish reading: %w", err)
	}
	return nil
}
