package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procodus.dev/drip-monitor/internal/hub"
	"procodus.dev/drip-monitor/internal/store"
	"procodus.dev/drip-monitor/pkg/auth"
	"procodus.dev/drip-monitor/pkg/bus"
	"procodus.dev/drip-monitor/pkg/metrics"
)

// DeviceStore is the device persistence surface the API needs.
type DeviceStore interface {
	Create(ctx context.Context, deviceID string) (*store.Device, error)
	Get(ctx context.Context, deviceID string) (*store.Device, error)
	List(ctx context.Context) ([]store.Device, error)
	Assign(ctx context.Context, deviceID, principalID string) (*store.Device, error)
}

// TelemetryStore is the telemetry read surface the API needs.
type TelemetryStore interface {
	Query(ctx context.Context, deviceID string, limit int) ([]store.Telemetry, error)
	Latest(ctx context.Context, deviceID string) (*store.Telemetry, error)
}

// AlertStore is the alert read surface the API needs.
type AlertStore interface {
	Query(ctx context.Context, deviceID string, limit int) ([]store.Alert, error)
	List(ctx context.Context, limit int) ([]store.Alert, error)
}

// Server serves the HTTP API and the websocket endpoint.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	config     *ServerConfig
	devices    DeviceStore
	telemetry  TelemetryStore
	alerts     AlertStore
	bus        bus.ClientInterface
	hub        *hub.Hub
	verifier   auth.TokenVerifier
	dbPing     func() error
	metrics    *metrics.APIMetrics
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTP server configuration
	HTTPPort int

	// Topic namespace for outbound commands
	Namespace string

	Devices   DeviceStore
	Telemetry TelemetryStore
	Alerts    AlertStore
	Bus       bus.ClientInterface
	Hub       *hub.Hub
	Verifier  auth.TokenVerifier

	// DBPing reports database liveness for the health endpoint. Optional.
	DBPing func() error
}

// NewServer creates a new API Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.Devices == nil || cfg.Telemetry == nil || cfg.Alerts == nil {
		return nil, errors.New("stores cannot be nil")
	}

	if cfg.Bus == nil {
		return nil, errors.New("bus client cannot be nil")
	}

	if cfg.Hub == nil {
		return nil, errors.New("hub cannot be nil")
	}

	if cfg.Verifier == nil {
		return nil, errors.New("token verifier cannot be nil")
	}

	if cfg.Namespace == "" {
		cfg.Namespace = bus.DefaultNamespace
	}

	return &Server{
		logger:    cfg.Logger,
		config:    cfg,
		devices:   cfg.Devices,
		telemetry: cfg.Telemetry,
		alerts:    cfg.Alerts,
		bus:       cfg.Bus,
		hub:       cfg.Hub,
		verifier:  cfg.Verifier,
		dbPing:    cfg.DBPing,
	}, nil
}

// SetMetrics attaches API metrics to the server.
func (s *Server) SetMetrics(m *metrics.APIMetrics) {
	s.metrics = m
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Run starts the API server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting API server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	mux := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Websocket connections outlive any sane write timeout; the hub's
		// ping loop handles dead peers instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("API server started successfully")

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down API server")

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	s.logger.Info("API server shutdown completed successfully")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())

	// Devices
	mux.HandleFunc("GET /api/devices", s.instrument("list_devices", s.requireAuth(s.handleListDevices)))
	mux.HandleFunc("POST /api/devices", s.instrument("create_device", s.requireOperator(s.handleCreateDevice)))
	mux.HandleFunc("POST /api/devices/assign", s.instrument("assign_device", s.requireOperator(s.handleAssignDevice)))
	mux.HandleFunc("POST /api/devices/send-command", s.instrument("send_command", s.requireOperator(s.handleSendCommand)))
	mux.HandleFunc("GET /api/devices/{id}", s.instrument("get_device", s.requireAuth(s.handleGetDevice)))

	// Telemetry
	mux.HandleFunc("GET /api/telemetry/{deviceId}", s.instrument("query_telemetry", s.requireAuth(s.handleTelemetry)))
	mux.HandleFunc("GET /api/telemetry/{deviceId}/latest", s.instrument("latest_telemetry", s.requireAuth(s.handleLatestTelemetry)))

	// Alerts
	mux.HandleFunc("GET /api/alerts", s.instrument("list_alerts", s.requireOperator(s.handleListAlerts)))
	mux.HandleFunc("GET /api/alerts/{deviceId}", s.instrument("device_alerts", s.requireAuth(s.handleDeviceAlerts)))

	// Live event stream
	mux.HandleFunc("GET /ws", s.requireAuth(s.handleWS))

	return mux
}
