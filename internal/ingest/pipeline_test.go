package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/drip-monitor/internal/ingest"
	"procodus.dev/drip-monitor/internal/store"
)

var _ = Describe("Pipeline", func() {
	var (
		logger      *slog.Logger
		devices     *fakeDeviceStore
		telemetry   *fakeTelemetryStore
		alerts      *fakeAlertStore
		broadcaster *fakeBroadcaster
		pipeline    *ingest.Pipeline
	)

	newPipeline := func() *ingest.Pipeline {
		p, err := ingest.NewPipeline(&ingest.PipelineConfig{
			Logger:      logger,
			Devices:     devices,
			Telemetry:   telemetry,
			Alerts:      alerts,
			Broadcaster: broadcaster,
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		devices = newFakeDeviceStore()
		telemetry = &fakeTelemetryStore{}
		alerts = &fakeAlertStore{}
		broadcaster = &fakeBroadcaster{}
		pipeline = newPipeline()
	})

	Describe("NewPipeline", func() {
		It("should return an error when config is nil", func() {
			p, err := ingest.NewPipeline(nil)
			Expect(err).To(HaveOccurred())
			Expect(p).To(BeNil())
		})

		It("should return an error when a dependency is missing", func() {
			p, err := ingest.NewPipeline(&ingest.PipelineConfig{
				Logger:      logger,
				Devices:     devices,
				Telemetry:   telemetry,
				Alerts:      alerts,
				Broadcaster: nil,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("broadcaster"))
			Expect(p).To(BeNil())
		})
	})

	Describe("Ingest", func() {
		It("should upsert the device, append the reading and broadcast", func() {
			err := pipeline.Ingest(context.Background(), "DEV001", &ingest.Reading{
				DripRate:    20,
				FlowStatus:  "flowing",
				BottleLevel: 80,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(devices.count()).To(Equal(1))
			Expect(telemetry.count()).To(Equal(1))
			Expect(alerts.count()).To(BeZero())
			Expect(broadcaster.recorded()).To(Equal([]string{"device:update", "telemetry:update"}))
		})

		It("should raise one medium alert and broadcast it last when the reading carries alert text", func() {
			err := pipeline.Ingest(context.Background(), "DEV001", &ingest.Reading{
				DripRate:    20,
				FlowStatus:  "flowing",
				BottleLevel: 80,
				Alert:       "Low battery warning",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(alerts.count()).To(Equal(1))
			Expect(alerts.appended[0].Severity).To(Equal(store.SeverityMedium))
			Expect(alerts.appended[0].Message).To(Equal("Low battery warning"))
			Expect(broadcaster.recorded()).To(Equal([]string{"device:update", "telemetry:update", "alert:new"}))
		})

		It("should raise one alert per reading with no deduplication", func() {
			for range 3 {
				err := pipeline.Ingest(context.Background(), "DEV001", &ingest.Reading{
					DripRate:    20,
					FlowStatus:  "blocked",
					BottleLevel: 80,
					Alert:       "Line blocked",
				})
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(alerts.count()).To(Equal(3))
		})

		It("should not broadcast or append when the device upsert fails", func() {
			devices.err = errors.New("connection refused")

			err := pipeline.Ingest(context.Background(), "DEV001", &ingest.Reading{
				DripRate:    20,
				FlowStatus:  "flowing",
				BottleLevel: 80,
			})
			Expect(err).To(HaveOccurred())

			Expect(telemetry.count()).To(BeZero())
			Expect(broadcaster.recorded()).To(BeEmpty())
		})

		It("should not broadcast when the telemetry append fails", func() {
			telemetry.err = errors.New("connection refused")

			err := pipeline.Ingest(context.Background(), "DEV001", &ingest.Reading{
				DripRate:    20,
				FlowStatus:  "flowing",
				BottleLevel: 80,
			})
			Expect(err).To(HaveOccurred())

			// The device row already reflects "seen": the three writes
			// are independent, with no rollback across stores.
			Expect(devices.count()).To(Equal(1))
			Expect(broadcaster.recorded()).To(BeEmpty())
		})

		It("should reuse the device record across readings", func() {
			for range 2 {
				err := pipeline.Ingest(context.Background(), "DEV001", &ingest.Reading{
					DripRate:    20,
					FlowStatus:  "flowing",
					BottleLevel: 80,
				})
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(devices.count()).To(Equal(1))
			Expect(telemetry.count()).To(Equal(2))
		})

		It("should create exactly one device under concurrent readings for an unseen id", func() {
			const n = 20

			var wg sync.WaitGroup
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					err := pipeline.Ingest(context.Background(), "DEV009", &ingest.Reading{
						DripRate:    10,
						FlowStatus:  "flowing",
						BottleLevel: 50,
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(devices.count()).To(Equal(1))
			Expect(telemetry.count()).To(Equal(n))
		})
	})
})
