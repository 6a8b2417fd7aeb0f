package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"procodus.dev/drip-monitor/internal/store"
	"procodus.dev/drip-monitor/pkg/auth"
	"procodus.dev/drip-monitor/pkg/bus"
)

const (
	defaultTelemetryLimit = 50
	defaultAlertLimit     = 100
	defaultDeviceAlerts   = 50
)

// requireDeviceAccess enforces the per-device read gate. Operators pass
// for any device, subjects only for their assigned one. Writes the 403
// itself and reports whether the caller may proceed.
func (s *Server) requireDeviceAccess(w http.ResponseWriter, r *http.Request, deviceID string) bool {
	principal, ok := principalFrom(r)
	if !ok || !auth.CanAccessDevice(principal, deviceID) {
		if s.metrics != nil {
			s.metrics.AccessDenied.Inc()
		}
		respondError(w, http.StatusForbidden, "Forbidden: not authorized for this device")
		return false
	}
	return true
}

// canonicalDeviceID normalizes ids so API lookups and registrations hit
// the same rows the ingest path writes.
func canonicalDeviceID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// handleHealth reports liveness and the broker and database link states.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	busStatus := "disconnected"
	if s.bus != nil && s.bus.IsConnected() {
		busStatus = "connected"
	}

	dbStatus := "unknown"
	if s.dbPing != nil {
		dbStatus = "connected"
		if err := s.dbPing(); err != nil {
			dbStatus = "disconnected"
		}
	}

	respondData(w, http.StatusOK, map[string]string{
		"status": "ok",
		"bus":    busStatus,
		"db":     dbStatus,
	})
}

// handleListDevices returns every device for operators. Subjects get a
// list holding only their assigned device, or an empty list when nothing
// is assigned. The role never leaks through the status code here.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	if principal.Role == auth.RoleOperator {
		devices, err := s.devices.List(r.Context())
		if err != nil {
			s.logger.Error("failed to list devices", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch devices")
			return
		}
		if devices == nil {
			devices = []store.Device{}
		}
		respondList(w, devices, len(devices))
		return
	}

	if principal.AssignedDeviceID == "" {
		respondList(w, []store.Device{}, 0)
		return
	}

	device, err := s.devices.Get(r.Context(), principal.AssignedDeviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondList(w, []store.Device{}, 0)
			return
		}
		s.logger.Error("failed to fetch assigned device", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch devices")
		return
	}
	respondList(w, []store.Device{*device}, 1)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := canonicalDeviceID(r.PathValue("id"))
	if !s.requireDeviceAccess(w, r, deviceID) {
		return
	}

	device, err := s.devices.Get(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Device not found")
			return
		}
		s.logger.Error("failed to get device", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch device")
		return
	}
	respondData(w, http.StatusOK, device)
}

type createDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// handleCreateDevice registers a device ahead of its first reading. The
// record starts inactive until telemetry arrives.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		respondError(w, http.StatusBadRequest, "Device ID is required")
		return
	}

	deviceID := canonicalDeviceID(req.DeviceID)
	device, err := s.devices.Create(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, store.ErrDeviceExists) {
			respondError(w, http.StatusBadRequest, "Device already registered")
			return
		}
		s.logger.Error("failed to create device", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}

	s.logger.Info("device registered", "device_id", deviceID)
	respondData(w, http.StatusCreated, device)
}

type assignDeviceRequest struct {
	DeviceID    string `json:"deviceId"`
	PrincipalID string `json:"principalId"`
}

func (s *Server) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	var req assignDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" || req.PrincipalID == "" {
		respondError(w, http.StatusBadRequest, "Device ID and principal ID are required")
		return
	}

	deviceID := canonicalDeviceID(req.DeviceID)
	device, err := s.devices.Assign(r.Context(), deviceID, req.PrincipalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Device not found")
			return
		}
		s.logger.Error("failed to assign device", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to assign device")
		return
	}

	s.logger.Info("device assigned", "device_id", deviceID, "principal_id", req.PrincipalID)
	respondMessage(w, "Device assigned", device)
}

type sendCommandRequest struct {
	DeviceID string `json:"deviceId"`
	Command  string `json:"command"`
}

type commandMessage struct {
	Command   string `json:"command"`
	Timestamp string `json:"timestamp"`
}

// handleSendCommand publishes a command to the device's command topic.
// Delivery is fire-and-forget: success means the broker accepted the
// message, nothing is persisted and no device reply is awaited.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" || req.Command == "" {
		respondError(w, http.StatusBadRequest, "Device ID and command are required")
		return
	}

	deviceID := canonicalDeviceID(req.DeviceID)
	if _, err := s.devices.Get(r.Context(), deviceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Device not found")
			return
		}
		s.logger.Error("failed to look up device", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to send command")
		return
	}

	payload, err := json.Marshal(commandMessage{
		Command:   req.Command,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to send command")
		return
	}

	topic := bus.CommandTopic(s.config.Namespace, deviceID)
	if err := s.bus.Publish(r.Context(), topic, payload); err != nil {
		if errors.Is(err, bus.ErrNotConnected) {
			respondError(w, http.StatusServiceUnavailable, "Broker unavailable, command not sent")
			return
		}
		s.logger.Error("failed to publish command", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to send command")
		return
	}

	s.logger.Info("command sent", "device_id", deviceID, "command", req.Command)
	respondMessage(w, "Command sent", map[string]string{
		"deviceId": deviceID,
		"command":  req.Command,
	})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID := canonicalDeviceID(r.PathValue("deviceId"))
	if !s.requireDeviceAccess(w, r, deviceID) {
		return
	}

	limit := limitParam(r, defaultTelemetryLimit)
	readings, err := s.telemetry.Query(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("failed to query telemetry", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch telemetry")
		return
	}
	if readings == nil {
		readings = []store.Telemetry{}
	}
	respondList(w, readings, len(readings))
}

func (s *Server) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID := canonicalDeviceID(r.PathValue("deviceId"))
	if !s.requireDeviceAccess(w, r, deviceID) {
		return
	}

	reading, err := s.telemetry.Latest(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "No telemetry found for device")
			return
		}
		s.logger.Error("failed to query latest telemetry", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch telemetry")
		return
	}
	respondData(w, http.StatusOK, reading)
}

// handleListAlerts returns the newest alerts across every device.
// Operator only.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, defaultAlertLimit)
	alerts, err := s.alerts.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list alerts", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch alerts")
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	respondList(w, alerts, len(alerts))
}

func (s *Server) handleDeviceAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := canonicalDeviceID(r.PathValue("deviceId"))
	if !s.requireDeviceAccess(w, r, deviceID) {
		return
	}

	limit := limitParam(r, defaultDeviceAlerts)
	alerts, err := s.alerts.Query(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("failed to query alerts", "device_id", deviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch alerts")
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	respondList(w, alerts, len(alerts))
}

// handleWS hands the authenticated request to the hub for upgrade. Event
// scoping per principal happens inside the hub on every broadcast.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	s.hub.ServeWS(w, r, principal)
}
