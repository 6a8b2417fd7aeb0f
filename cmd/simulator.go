package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/drip-monitor/internal/simulator"
	"procodus.dev/drip-monitor/pkg/bus"
	"procodus.dev/drip-monitor/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the sensor fleet simulator",
	Long: `Run the simulator that:
- Generates a fleet of synthetic drip sensors
- Publishes correlated telemetry readings to the MQTT bus
- Occasionally produces stopped or blocked flow readings with alerts`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("broker-url", "tcp://localhost:1883", "MQTT broker URL")
	simulatorCmd.Flags().String("namespace", bus.DefaultNamespace, "bus topic namespace")
	simulatorCmd.Flags().Int("device-count", 3, "number of simulated devices")
	simulatorCmd.Flags().Duration("interval", 2*time.Second, "interval between readings per device")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.mqtt.broker_url", simulatorCmd.Flags().Lookup("broker-url"))
	_ = viper.BindPFlag("simulator.mqtt.namespace", simulatorCmd.Flags().Lookup("namespace"))
	_ = viper.BindPFlag("simulator.device_count", simulatorCmd.Flags().Lookup("device-count"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator service")

	busClient, err := bus.New(&bus.Config{
		Logger:    logger,
		BrokerURL: viper.GetString("simulator.mqtt.broker_url"),
		ClientID:  "drip-monitor-simulator",
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

	fleet, err := simulator.NewFleet(&simulator.FleetConfig{
		Logger:      logger,
		Bus:         busClient,
		Namespace:   viper.GetString("simulator.mqtt.namespace"),
		Interval:    viper.GetDuration("simulator.interval"),
		DeviceCount: viper.GetInt("simulator.device_count"),
	})
	if err != nil {
		logger.Error("failed to create fleet", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fleet.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator service stopped")
	return nil
}
