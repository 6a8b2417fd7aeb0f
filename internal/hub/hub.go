package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"procodus.dev/drip-monitor/internal/store"
	"procodus.dev/drip-monitor/pkg/auth"
	"procodus.dev/drip-monitor/pkg/metrics"
)

// Per-subscriber send buffer. A subscriber that falls this far behind is
// dropped rather than allowed to block ingestion.
const sendBufferSize = 32

// Subscriber is one connected real-time viewer. Events arrive on the
// channel returned by Events; the channel is closed when the subscriber
// is dropped or unsubscribed.
type Subscriber struct {
	principal auth.Principal
	send      chan Event
}

// Events returns the subscriber's event stream.
func (s *Subscriber) Events() <-chan Event {
	return s.send
}

// Principal returns the identity the subscriber registered with.
func (s *Subscriber) Principal() auth.Principal {
	return s.principal
}

// Hub holds the set of connected subscribers and fans ingestion events
// out to them. The subscriber set is the one piece of state shared
// between the ingestion path and the serving path, so all access is
// mutex-guarded.
//
// Events are scoped: a subscriber only receives events for devices its
// principal may read, applying the same rule as the HTTP access gate.
type Hub struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	subs    map[*Subscriber]struct{}
	metrics *metrics.HubMetrics // Optional metrics
}

// New creates an empty Hub.
func New(logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Hub{
		logger: logger,
		subs:   map[*Subscriber]struct{}{},
	}, nil
}

// SetMetrics sets the metrics collector for this hub.
func (h *Hub) SetMetrics(m *metrics.HubMetrics) {
	h.metrics = m
}

// Subscribe registers a new subscriber for the given principal.
func (h *Hub) Subscribe(p auth.Principal) *Subscriber {
	sub := &Subscriber{
		principal: p,
		send:      make(chan Event, sendBufferSize),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Set(float64(count))
	}
	h.logger.Info("subscriber connected", "principal_id", p.ID, "subscribers", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its event stream. Safe to
// call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, present := h.subs[sub]
	if present {
		delete(h.subs, sub)
		close(sub.send)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if !present {
		return
	}
	if h.metrics != nil {
		h.metrics.Subscribers.Set(float64(count))
	}
	h.logger.Info("subscriber disconnected", "principal_id", sub.principal.ID, "subscribers", count)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// BroadcastDeviceUpdate publishes the combined device+reading event.
func (h *Hub) BroadcastDeviceUpdate(device *store.Device, reading *store.Telemetry) {
	h.broadcast(device.DeviceID, Event{
		Event: EventDeviceUpdate,
		Data: DeviceUpdate{
			DeviceID:  device.DeviceID,
			Device:    device,
			Telemetry: reading,
			Timestamp: time.Now().UTC(),
		},
	})
}

// BroadcastTelemetry publishes the reading-only event.
func (h *Hub) BroadcastTelemetry(deviceID string, reading *store.Telemetry) {
	h.broadcast(deviceID, Event{
		Event: EventTelemetryUpdate,
		Data: TelemetryUpdate{
			DeviceID:  deviceID,
			Telemetry: reading,
			Timestamp: time.Now().UTC(),
		},
	})
}

// BroadcastAlert publishes a new-alert event.
func (h *Hub) BroadcastAlert(alert *store.Alert) {
	h.broadcast(alert.DeviceID, Event{
		Event: EventAlertNew,
		Data: AlertNew{
			Alert:     alert,
			Timestamp: time.Now().UTC(),
		},
	})
}

// broadcast delivers an event to every subscriber authorized for the
// device. Sends never block: a subscriber whose buffer is full is dropped.
func (h *Hub) broadcast(deviceID string, ev Event) {
	var dropped []*Subscriber

	h.mu.RLock()
	for sub := range h.subs {
		if !auth.CanAccessDevice(sub.principal, deviceID) {
			continue
		}
		select {
		case sub.send <- ev:
			if h.metrics != nil {
				h.metrics.EventsDelivered.WithLabelValues(ev.Event).Inc()
			}
		default:
			dropped = append(dropped, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range dropped {
		h.logger.Warn("dropping slow subscriber", "principal_id", sub.principal.ID)
		if h.metrics != nil {
			h.metrics.SlowDrops.Inc()
		}
		h.Unsubscribe(sub)
	}
}
