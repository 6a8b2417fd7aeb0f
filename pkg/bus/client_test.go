package bus_test

import (
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/drip-monitor/pkg/bus"
)

var _ = Describe("Bus Client", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("New", func() {
		It("should return an error when config is nil", func() {
			client, err := bus.New(nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("config cannot be nil"))
			Expect(client).To(BeNil())
		})

		It("should return an error when logger is nil", func() {
			client, err := bus.New(&bus.Config{BrokerURL: "tcp://localhost:1883"})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger"))
			Expect(client).To(BeNil())
		})

		It("should return an error when broker URL is empty", func() {
			client, err := bus.New(&bus.Config{Logger: logger})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("broker URL"))
			Expect(client).To(BeNil())
		})

		It("should create a client that keeps retrying in the background", func() {
			client, err := bus.New(&bus.Config{
				Logger:    logger,
				BrokerURL: "tcp://localhost:1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(client).NotTo(BeNil())
			Expect(client.IsConnected()).To(BeFalse())

			Expect(client.Close()).To(Succeed())
		})
	})

	Describe("Subscribe", func() {
		var client *bus.Client

		BeforeEach(func() {
			var err error
			client, err = bus.New(&bus.Config{
				Logger:    logger,
				BrokerURL: "tcp://localhost:1",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = client.Close()
		})

		It("should reject an empty topic", func() {
			err := client.Subscribe("", func(string, []byte) {})
			Expect(err).To(HaveOccurred())
		})

		It("should reject a nil handler", func() {
			err := client.Subscribe(bus.TelemetryPattern("drip"), nil)
			Expect(err).To(HaveOccurred())
		})

		It("should record the subscription while disconnected", func() {
			err := client.Subscribe(bus.TelemetryPattern("drip"), func(string, []byte) {})
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
