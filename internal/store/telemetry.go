package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TelemetryRepo persists immutable telemetry records.
type TelemetryRepo struct {
	db *gorm.DB
}

// NewTelemetryRepo creates a TelemetryRepo.
func NewTelemetryRepo(db *gorm.DB) *TelemetryRepo {
	return &TelemetryRepo{db: db}
}

// Append persists one reading. The server timestamp is assigned when the
// reading carries none.
func (r *TelemetryRepo) Append(ctx context.Context, t *Telemetry) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to append telemetry: %w", err)
	}
	return nil
}

// Query returns up to limit most-recent readings for a device, reordered
// ascending by timestamp (oldest first) for charting.
func (r *TelemetryRepo) Query(ctx context.Context, deviceID string, limit int) ([]Telemetry, error) {
	var readings []Telemetry
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}

	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

// Latest returns the single most recent reading for a device, or
// ErrNotFound when the device has none.
func (r *TelemetryRepo) Latest(ctx context.Context, deviceID string) (*Telemetry, error) {
	var reading Telemetry
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		First(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query latest telemetry: %w", err)
	}
	return &reading, nil
}
