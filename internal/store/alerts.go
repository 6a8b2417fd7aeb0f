package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AlertRepo persists alert records.
type AlertRepo struct {
	db *gorm.DB
}

// NewAlertRepo creates an AlertRepo.
func NewAlertRepo(db *gorm.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// Append persists one alert. Alerts are append-only and never deduplicated.
func (r *AlertRepo) Append(ctx context.Context, a *Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Severity == "" {
		a.Severity = SeverityMedium
	}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// Query returns up to limit most-recent alerts for a device, newest first.
func (r *AlertRepo) Query(ctx context.Context, deviceID string, limit int) ([]Alert, error) {
	var alerts []Alert
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return alerts, nil
}

// List returns up to limit most-recent alerts across all devices, newest
// first.
func (r *AlertRepo) List(ctx context.Context, limit int) ([]Alert, error) {
	var alerts []Alert
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
