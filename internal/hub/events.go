// Package hub is the process-wide fan-out point delivering ingestion
// events to connected real-time subscribers.
package hub

import (
	"time"

	"procodus.dev/drip-monitor/internal/store"
)

// Event names pushed to subscribers.
const (
	EventDeviceUpdate    = "device:update"
	EventTelemetryUpdate = "telemetry:update"
	EventAlertNew        = "alert:new"
)

// Event is one frame on the push channel.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// DeviceUpdate is the payload of a device:update event: the combined
// post-ingest device record and the reading that refreshed it.
type DeviceUpdate struct {
	DeviceID  string           `json:"deviceId"`
	Device    *store.Device    `json:"device"`
	Telemetry *store.Telemetry `json:"telemetry"`
	Timestamp time.Time        `json:"timestamp"`
}

// TelemetryUpdate is the payload of a telemetry:update event.
type TelemetryUpdate struct {
	DeviceID  string           `json:"deviceId"`
	Telemetry *store.Telemetry `json:"telemetry"`
	Timestamp time.Time        `json:"timestamp"`
}

// AlertNew is the payload of an alert:new event.
type AlertNew struct {
	Alert     *store.Alert `json:"alert"`
	Timestamp time.Time    `json:"timestamp"`
}
