// Package store provides the Postgres persistence layer: device liveness
// records, append-only telemetry, and append-only alerts.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a query targets a nonexistent record.
	ErrNotFound = errors.New("record not found")
	// ErrDeviceExists is returned when explicitly creating a device whose
	// id is already registered.
	ErrDeviceExists = errors.New("device already exists")
)

// DeviceStatus is the liveness state of a monitor.
type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"

	// Reserved states. No code path currently transitions into them;
	// the upstream design defines them without a trigger.
	DeviceWarning  DeviceStatus = "warning"
	DeviceCritical DeviceStatus = "critical"
)

// FlowStatus describes the infusion flow reported by a sensor.
type FlowStatus string

const (
	FlowFlowing FlowStatus = "flowing"
	FlowStopped FlowStatus = "stopped"
	FlowBlocked FlowStatus = "blocked"
)

// AlertSeverity grades an alert record.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Device represents one physical infusion monitor. Created explicitly by
// an operator or auto-vivified on the first ingested reading; never
// deleted.
type Device struct {
	DeviceID          string       `gorm:"uniqueIndex;not null" json:"deviceId"`
	Status            DeviceStatus `gorm:"not null;default:inactive" json:"status"`
	LastSeen          time.Time    `gorm:"index:idx_devices_last_seen" json:"lastSeen"`
	Battery           int          `gorm:"not null;default:100" json:"battery"`
	AssignedPrincipal string       `json:"assignedPrincipal,omitempty"`
	CreatedAt         time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
	ID                uint         `gorm:"primaryKey" json:"-"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "devices"
}

// Telemetry is one immutable sensor sample. Rows are append-only: never
// mutated or deleted.
type Telemetry struct {
	DeviceID    string     `gorm:"index:idx_telemetry_device_ts;not null" json:"deviceId"`
	DripRate    float64    `gorm:"not null" json:"dripRate"`
	FlowStatus  FlowStatus `gorm:"not null" json:"flowStatus"`
	BottleLevel float64    `gorm:"not null" json:"bottleLevel"`
	Alert       *string    `json:"alert"`
	Timestamp   time.Time  `gorm:"index:idx_telemetry_device_ts,sort:desc;index:idx_telemetry_ts;not null" json:"timestamp"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"-"`
	ID          uint       `gorm:"primaryKey" json:"-"`
}

// TableName specifies the table name for the Telemetry model.
func (Telemetry) TableName() string {
	return "telemetry"
}

// Alert is one notable event derived from a reading. Append-only; one row
// per reading carrying alert text, duplicates included.
type Alert struct {
	DeviceID  string        `gorm:"index:idx_alerts_device_ts;not null" json:"deviceId"`
	Message   string        `gorm:"not null" json:"message"`
	Severity  AlertSeverity `gorm:"not null;default:medium" json:"severity"`
	Timestamp time.Time     `gorm:"index:idx_alerts_device_ts,sort:desc;index:idx_alerts_ts;not null" json:"timestamp"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"-"`
	ID        uint          `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for the Alert model.
func (Alert) TableName() string {
	return "alerts"
}
