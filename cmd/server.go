package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/drip-monitor/internal/api"
	"procodus.dev/drip-monitor/internal/hub"
	"procodus.dev/drip-monitor/internal/ingest"
	"procodus.dev/drip-monitor/internal/store"
	"procodus.dev/drip-monitor/pkg/auth"
	"procodus.dev/drip-monitor/pkg/bus"
	"procodus.dev/drip-monitor/pkg/metrics"
)

// metricsNamespace prefixes every Prometheus metric.
const metricsNamespace = "drip_monitor"

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the monitoring server",
	Long: `Run the monitoring server that:
- Consumes drip-sensor readings from the MQTT bus
- Persists devices, telemetry and alerts to PostgreSQL
- Serves the HTTP JSON API
- Streams live events to websocket subscribers
- Publishes device commands to the bus`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serverCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serverCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serverCmd.Flags().String("db-password", "", "PostgreSQL password")
	serverCmd.Flags().String("db-name", "drip", "PostgreSQL database name")
	serverCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serverCmd.Flags().String("broker-url", "tcp://localhost:1883", "MQTT broker URL")
	serverCmd.Flags().String("namespace", bus.DefaultNamespace, "bus topic namespace")
	serverCmd.Flags().Int("http-port", 8080, "HTTP server port")

	// Bind flags to viper
	_ = viper.BindPFlag("server.db.host", serverCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("server.db.port", serverCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("server.db.user", serverCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("server.db.password", serverCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("server.db.name", serverCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("server.db.sslmode", serverCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("server.mqtt.broker_url", serverCmd.Flags().Lookup("broker-url"))
	_ = viper.BindPFlag("server.mqtt.namespace", serverCmd.Flags().Lookup("namespace"))
	_ = viper.BindPFlag("server.http.port", serverCmd.Flags().Lookup("http-port"))
}

// loadTokens reads the static token table from configuration. Tokens live
// under auth.tokens as token -> {id, role, assignedDeviceId} entries.
func loadTokens() (map[string]auth.Principal, error) {
	tokens := map[string]auth.Principal{}
	if err := viper.UnmarshalKey("auth.tokens", &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func runServer(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting monitoring server")

	namespace := viper.GetString("server.mqtt.namespace")

	db, err := store.NewDB(&store.DBConfig{
		Logger:   logger,
		Host:     viper.GetString("server.db.host"),
		Port:     viper.GetInt("server.db.port"),
		User:     viper.GetString("server.db.user"),
		Password: viper.GetString("server.db.password"),
		DBName:   viper.GetString("server.db.name"),
		SSLMode:  viper.GetString("server.db.sslmode"),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer func() {
		if err := store.CloseDB(db, logger); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	busClient, err := bus.New(&bus.Config{
		Logger:    logger,
		BrokerURL: viper.GetString("server.mqtt.broker_url"),
		ClientID:  "drip-monitor-server",
	})
	if err != nil {
		logger.Error("failed to create bus client", "error", err)
		return err
	}
	busClient.SetMetrics(metrics.NewBusMetrics(metricsNamespace))
	defer func() {
		if err := busClient.Close(); err != nil {
			logger.Error("failed to close bus client", "error", err)
		}
	}()

	deviceRepo := store.NewDeviceRepo(db)
	telemetryRepo := store.NewTelemetryRepo(db)
	alertRepo := store.NewAlertRepo(db)

	eventHub, err := hub.New(logger)
	if err != nil {
		logger.Error("failed to create hub", "error", err)
		return err
	}
	eventHub.SetMetrics(metrics.NewHubMetrics(metricsNamespace))

	pipeline, err := ingest.NewPipeline(&ingest.PipelineConfig{
		Logger:      logger,
		Devices:     deviceRepo,
		Telemetry:   telemetryRepo,
		Alerts:      alertRepo,
		Broadcaster: eventHub,
	})
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		return err
	}

	consumer, err := ingest.NewConsumer(&ingest.ConsumerConfig{
		Logger:    logger,
		Bus:       busClient,
		Pipeline:  pipeline,
		Namespace: namespace,
	})
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		return err
	}

	ingestMetrics := metrics.NewIngestMetrics(metricsNamespace)
	pipeline.SetMetrics(ingestMetrics)
	consumer.SetMetrics(ingestMetrics)

	tokens, err := loadTokens()
	if err != nil {
		logger.Error("failed to load auth tokens", "error", err)
		return err
	}
	if len(tokens) == 0 {
		logger.Warn("no auth tokens configured, every API request will be rejected")
	}

	server, err := api.NewServer(&api.ServerConfig{
		Logger:    logger,
		HTTPPort:  viper.GetInt("server.http.port"),
		Namespace: namespace,
		Devices:   deviceRepo,
		Telemetry: telemetryRepo,
		Alerts:    alertRepo,
		Bus:       busClient,
		Hub:       eventHub,
		Verifier:  auth.NewStaticVerifier(tokens),
		DBPing:    func() error { return store.Ping(db) },
	})
	if err != nil {
		logger.Error("failed to create API server", "error", err)
		return err
	}
	server.SetMetrics(metrics.NewAPIMetrics(metricsNamespace))

	ctx := context.Background()

	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start consumer", "error", err)
		return err
	}

	logger.Info("monitoring server configuration",
		"db_host", viper.GetString("server.db.host"),
		"db_name", viper.GetString("server.db.name"),
		"broker_url", viper.GetString("server.mqtt.broker_url"),
		"namespace", namespace,
		"http_port", viper.GetInt("server.http.port"),
	)

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("monitoring server stopped")
	return nil
}
