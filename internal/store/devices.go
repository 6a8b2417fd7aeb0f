package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepo persists device liveness records.
type DeviceRepo struct {
	db *gorm.DB
}

// NewDeviceRepo creates a DeviceRepo.
func NewDeviceRepo(db *gorm.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// Touch marks a device as seen: it creates the record with defaults or, if
// the id is already registered, sets status=active and last_seen in the
// same statement. The mutation is a single INSERT ... ON CONFLICT DO
// UPDATE so that two readings racing on an unseen device id cannot both
// take the create path or lose a status update. Battery and assignment
// are left untouched on the update path.
//
// Returns (device, created). created reports whether this call
// auto-vivified the record.
func (r *DeviceRepo) Touch(ctx context.Context, deviceID string) (*Device, bool, error) {
	now := time.Now().UTC()

	device := &Device{
		DeviceID:  deviceID,
		Status:    DeviceActive,
		LastSeen:  now,
		Battery:   100,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":     DeviceActive,
				"last_seen":  now,
				"updated_at": now,
			}),
		}).
		Create(device).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert device: %w", err)
	}

	// Re-read for the post-upsert row: on the update path the insert
	// values above do not reflect the stored battery or assignment.
	var out Device
	if err := r.db.WithContext(ctx).First(&out, "device_id = ?", deviceID).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load device after upsert: %w", err)
	}

	created := out.CreatedAt.Equal(out.UpdatedAt)
	return &out, created, nil
}

// Create explicitly registers a device with status inactive. Returns
// ErrDeviceExists when the id is already registered.
func (r *DeviceRepo) Create(ctx context.Context, deviceID string) (*Device, error) {
	device := &Device{
		DeviceID: deviceID,
		Status:   DeviceInactive,
		LastSeen: time.Now().UTC(),
		Battery:  100,
	}

	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDeviceExists
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

// Get returns one device by id, or ErrNotFound.
func (r *DeviceRepo) Get(ctx context.Context, deviceID string) (*Device, error) {
	var device Device
	err := r.db.WithContext(ctx).First(&device, "device_id = ?", deviceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

// List returns all devices, most recently registered first.
func (r *DeviceRepo) List(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Assign binds a device to a patient principal. Returns ErrNotFound when
// the device is not registered.
func (r *DeviceRepo) Assign(ctx context.Context, deviceID, principalID string) (*Device, error) {
	result := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_id = ?", deviceID).
		Update("assigned_principal", principalID)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to assign device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, deviceID)
}
