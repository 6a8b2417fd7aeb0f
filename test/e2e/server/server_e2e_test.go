package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/gorilla/websocket"

	"procodus.dev/drip-monitor/pkg/bus"
)

var _ = Describe("Server E2E", func() {
	Context("telemetry ingestion", func() {
		It("should ingest a published reading and expose it over the API", func() {
			publishTelemetry("E2E001", `{"dripRate":20,"flowStatus":"flowing","bottleLevel":80}`)

			Eventually(func() int {
				_, body := apiRequest(http.MethodGet, "/api/telemetry/E2E001", operatorToken, nil)
				if body.Count == nil {
					return 0
				}
				return *body.Count
			}, 10*time.Second).Should(BeNumerically(">=", 1))

			status, body := apiRequest(http.MethodGet, "/api/devices/E2E001", operatorToken, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body.Data)).To(ContainSubstring(`"status":"active"`))
		})

		It("should fold readings with differently cased ids into one device", func() {
			publishTelemetry("e2e003", `{"dripRate":15,"flowStatus":"flowing","bottleLevel":70}`)
			publishTelemetry("E2E003", `{"dripRate":16,"flowStatus":"flowing","bottleLevel":69}`)

			Eventually(func() int {
				_, body := apiRequest(http.MethodGet, "/api/telemetry/E2E003", operatorToken, nil)
				if body.Count == nil {
					return 0
				}
				return *body.Count
			}, 10*time.Second).Should(Equal(2))

			_, body := apiRequest(http.MethodGet, "/api/devices", operatorToken, nil)
			Expect(strings.Count(string(body.Data), "E2E003")).To(Equal(1))
		})

		It("should create exactly one device row under concurrent readings for an unseen id", func() {
			const n = 10

			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					publishTelemetry("E2E010", fmt.Sprintf(
						`{"dripRate":%d,"flowStatus":"flowing","bottleLevel":50}`, 10+i))
				}()
			}
			wg.Wait()

			Eventually(func() int {
				_, body := apiRequest(http.MethodGet, "/api/telemetry/E2E010", operatorToken, nil)
				if body.Count == nil {
					return 0
				}
				return *body.Count
			}, 15*time.Second).Should(Equal(n))

			_, body := apiRequest(http.MethodGet, "/api/devices", operatorToken, nil)
			Expect(strings.Count(string(body.Data), "E2E010")).To(Equal(1))
		})

		It("should drop a malformed reading without creating the device", func() {
			publishTelemetry("E2E011", `{"dripRate":20,"flowStatus":"flowing"}`)

			Consistently(func() int {
				status, _ := apiRequest(http.MethodGet, "/api/devices/E2E011", operatorToken, nil)
				return status
			}, 3*time.Second).Should(Equal(http.StatusNotFound))
		})
	})

	Context("telemetry queries", func() {
		It("should return the most recent readings in ascending order when limited", func() {
			base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
			for i := range 3 {
				ts := base.Add(time.Duration(i) * time.Minute)
				publishTelemetry("E2E020", fmt.Sprintf(
					`{"dripRate":%d,"flowStatus":"flowing","bottleLevel":60,"timestamp":"%s"}`,
					10+i, ts.Format(time.RFC3339)))
			}

			Eventually(func() int {
				_, body := apiRequest(http.MethodGet, "/api/telemetry/E2E020", operatorToken, nil)
				if body.Count == nil {
					return 0
				}
				return *body.Count
			}, 10*time.Second).Should(Equal(3))

			status, body := apiRequest(http.MethodGet, "/api/telemetry/E2E020?limit=2", operatorToken, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body.Count).To(HaveValue(Equal(2)))

			// The two newest readings, oldest of the pair first.
			var readings []struct {
				DripRate  float64   `json:"dripRate"`
				Timestamp time.Time `json:"timestamp"`
			}
			Expect(json.Unmarshal(body.Data, &readings)).To(Succeed())
			Expect(readings).To(HaveLen(2))
			Expect(readings[0].DripRate).To(Equal(11.0))
			Expect(readings[1].DripRate).To(Equal(12.0))
			Expect(readings[0].Timestamp.Before(readings[1].Timestamp)).To(BeTrue())
		})

		It("should serve the latest reading and 404 before any exist", func() {
			status, _ := apiRequest(http.MethodGet, "/api/telemetry/E2E040/latest", operatorToken, nil)
			Expect(status).To(Equal(http.StatusNotFound))

			publishTelemetry("E2E040", `{"dripRate":7,"flowStatus":"stopped","bottleLevel":30}`)

			Eventually(func() int {
				status, _ := apiRequest(http.MethodGet, "/api/telemetry/E2E040/latest", operatorToken, nil)
				return status
			}, 10*time.Second).Should(Equal(http.StatusOK))
		})

		It("should deny a subject reading another device's telemetry", func() {
			status, _ := apiRequest(http.MethodGet, "/api/telemetry/E2E020", subjectToken, nil)
			Expect(status).To(Equal(http.StatusForbidden))
		})
	})

	Context("alerts", func() {
		It("should persist a medium alert from a reading and list it", func() {
			publishTelemetry("E2E030", `{"dripRate":0,"flowStatus":"blocked","bottleLevel":40,"alert":"Line blocked"}`)

			Eventually(func() int {
				_, body := apiRequest(http.MethodGet, "/api/alerts/E2E030", operatorToken, nil)
				if body.Count == nil {
					return 0
				}
				return *body.Count
			}, 10*time.Second).Should(Equal(1))

			_, body := apiRequest(http.MethodGet, "/api/alerts/E2E030", operatorToken, nil)
			Expect(string(body.Data)).To(ContainSubstring(`"severity":"medium"`))
			Expect(string(body.Data)).To(ContainSubstring("Line blocked"))

			status, body := apiRequest(http.MethodGet, "/api/alerts", operatorToken, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body.Data)).To(ContainSubstring("E2E030"))
		})

		It("should keep duplicate alerts as separate records", func() {
			for range 2 {
				publishTelemetry("E2E031", `{"dripRate":0,"flowStatus":"stopped","bottleLevel":40,"alert":"Flow stopped"}`)
			}

			Eventually(func() int {
				_, body := apiRequest(http.MethodGet, "/api/alerts/E2E031", operatorToken, nil)
				if body.Count == nil {
					return 0
				}
				return *body.Count
			}, 10*time.Second).Should(Equal(2))
		})

		It("should deny a subject the unscoped alert listing", func() {
			status, _ := apiRequest(http.MethodGet, "/api/alerts", subjectToken, nil)
			Expect(status).To(Equal(http.StatusForbidden))
		})
	})

	Context("live events", func() {
		It("should stream scoped events to a websocket subscriber", func() {
			url := fmt.Sprintf("ws://localhost:%d/ws?token=%s", httpPort, subjectToken)
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = conn.Close() })

			Eventually(eventHub.Count, 5*time.Second).Should(BeNumerically(">=", 1))

			// The subject is assigned E2E001; the E2E999 reading must never
			// reach this connection.
			publishTelemetry("E2E999", `{"dripRate":5,"flowStatus":"flowing","bottleLevel":50}`)
			publishTelemetry("E2E001", `{"dripRate":21,"flowStatus":"flowing","bottleLevel":79}`)

			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
			var ev struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			Expect(conn.ReadJSON(&ev)).To(Succeed())
			Expect(ev.Event).To(Equal("device:update"))
			Expect(string(ev.Data)).To(ContainSubstring("E2E001"))
			Expect(string(ev.Data)).NotTo(ContainSubstring("E2E999"))
		})
	})

	Context("commands", func() {
		It("should publish a command to the device's command topic", func() {
			received := make(chan []byte, 1)
			topic := bus.CommandTopic(bus.DefaultNamespace, "E2E001")
			Expect(sensorBus.Subscribe(topic, func(_ string, payload []byte) {
				received <- payload
			})).To(Succeed())

			// Give the broker a moment to register the subscription.
			time.Sleep(time.Second)

			status, body := apiRequest(http.MethodPost, "/api/devices/send-command", operatorToken,
				strings.NewReader(`{"deviceId":"E2E001","command":"pause"}`))
			Expect(status).To(Equal(http.StatusOK))
			Expect(body.Message).To(Equal("Command sent"))

			var payload []byte
			Eventually(received, 10*time.Second).Should(Receive(&payload))
			Expect(string(payload)).To(ContainSubstring(`"command":"pause"`))
			Expect(string(payload)).To(ContainSubstring(`"timestamp"`))
		})

		It("should deny a subject sending commands", func() {
			status, _ := apiRequest(http.MethodPost, "/api/devices/send-command", subjectToken,
				strings.NewReader(`{"deviceId":"E2E001","command":"pause"}`))
			Expect(status).To(Equal(http.StatusForbidden))
		})
	})
})
