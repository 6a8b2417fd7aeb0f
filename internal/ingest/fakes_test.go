package ingest_test

import (
	"context"
	"sync"
	"time"

	"procodus.dev/drip-monitor/internal/store"
)

// In-memory fakes for the pipeline's store and broadcast dependencies.

type fakeDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*store.Device
	err     error
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{devices: map[string]*store.Device{}}
}

func (f *fakeDeviceStore) Touch(_ context.Context, deviceID string) (*store.Device, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, false, f.err
	}

	now := time.Now().UTC()
	if d, ok := f.devices[deviceID]; ok {
		d.Status = store.DeviceActive
		d.LastSeen = now
		copied := *d
		return &copied, false, nil
	}

	d := &store.Device{
		DeviceID: deviceID,
		Status:   store.DeviceActive,
		LastSeen: now,
		Battery:  100,
	}
	f.devices[deviceID] = d
	copied := *d
	return &copied, true, nil
}

func (f *fakeDeviceStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

type fakeTelemetryStore struct {
	mu       sync.Mutex
	appended []*store.Telemetry
	err      error
}

func (f *fakeTelemetryStore) Append(_ context.Context, t *store.Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	f.appended = append(f.appended, t)
	return nil
}

func (f *fakeTelemetryStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type fakeAlertStore struct {
	mu       sync.Mutex
	appended []*store.Alert
	err      error
}

func (f *fakeAlertStore) Append(_ context.Context, a *store.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, a)
	return nil
}

func (f *fakeAlertStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

// fakeBroadcaster records the order in which events were published.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	alerts []*store.Alert
}

func (f *fakeBroadcaster) BroadcastDeviceUpdate(*store.Device, *store.Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "device:update")
}

func (f *fakeBroadcaster) BroadcastTelemetry(string, *store.Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "telemetry:update")
}

func (f *fakeBroadcaster) BroadcastAlert(a *store.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "alert:new")
	f.alerts = append(f.alerts, a)
}

func (f *fakeBroadcaster) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}
