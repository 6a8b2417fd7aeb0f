// Package bus provides the MQTT bus client with automatic reconnection
// used for telemetry ingestion and device command publishing.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"procodus.dev/drip-monitor/pkg/metrics"
)

const (
	// Fixed interval between reconnection attempts. The client never
	// gives up reconnecting; messages published by devices while the
	// link is down are lost, per the at-most-once delivery model.
	reconnectInterval = 5 * time.Second

	// QoS 0: fire-and-forget, no broker-side acknowledgment or replay.
	qosFireAndForget = 0

	// How long Close waits for in-flight work before dropping the link.
	disconnectQuiesce = 250 * time.Millisecond
)

var (
	// ErrNotConnected is returned by Publish while the broker link is
	// down. Callers do not retry; command delivery is fire-and-forget.
	ErrNotConnected = errors.New("not connected to the broker")
)

// MessageHandler receives one raw bus message.
type MessageHandler func(topic string, payload []byte)

// Client is an MQTT client that handles connection management, automatic
// reconnection with subscription recovery, and publishing.
type Client struct {
	m             sync.Mutex
	logger        *slog.Logger
	client        mqtt.Client
	subscriptions map[string]MessageHandler
	metrics       *metrics.BusMetrics // Optional metrics
}

// Config holds the configuration for the bus Client.
type Config struct {
	Logger *slog.Logger

	// BrokerURL is the MQTT broker address, e.g. tcp://localhost:1883.
	BrokerURL string

	// ClientID identifies this session to the broker. A random suffix is
	// appended so multiple processes do not evict each other's sessions.
	ClientID string
}

// New creates a bus client and starts connecting in the background.
// Connection failures are retried indefinitely at a fixed interval.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("bus config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BrokerURL == "" {
		return nil, errors.New("broker URL cannot be empty")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "drip-monitor"
	}
	clientID = fmt.Sprintf("%s-%08x", clientID, rand.Uint32()) // #nosec G404 - session suffix, not security material

	c := &Client{
		logger:        cfg.Logger,
		subscriptions: map[string]MessageHandler{},
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	c.client.Connect()

	return c, nil
}

// SetMetrics sets the metrics collector for this client.
// This should be called before the client starts processing messages.
func (c *Client) SetMetrics(m *metrics.BusMetrics) {
	c.metrics = m
}

// onConnect re-establishes all recorded subscriptions. Paho calls it on
// the initial connect and after every reconnect; with a clean session the
// broker forgets our subscriptions in between.
func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("connected to broker")

	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(1)
	}

	c.m.Lock()
	defer c.m.Unlock()
	for topic, handler := range c.subscriptions {
		c.subscribe(client, topic, handler)
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Error("broker connection lost, reconnecting", "error", err)

	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
		c.metrics.Reconnects.Inc()
	}
}

// Subscribe registers a handler for a topic filter. The subscription
// survives reconnects. Handlers run on paho's router goroutines; they must
// not block indefinitely.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return errors.New("topic cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	c.m.Lock()
	defer c.m.Unlock()
	c.subscriptions[topic] = handler

	if c.client.IsConnectionOpen() {
		c.subscribe(c.client, topic, handler)
	}
	return nil
}

// subscribe issues the broker subscription. Callers hold c.m.
func (c *Client) subscribe(client mqtt.Client, topic string, handler MessageHandler) {
	token := client.Subscribe(topic, qosFireAndForget, func(_ mqtt.Client, msg mqtt.Message) {
		if c.metrics != nil {
			c.metrics.MessagesReceived.WithLabelValues(topic).Inc()
		}
		handler(msg.Topic(), msg.Payload())
	})

	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("failed to subscribe", "topic", topic, "error", err)
			return
		}
		c.logger.Info("subscribed", "topic", topic)
	}()
}

// Publish sends a payload to a topic at QoS 0. Success means the message
// was handed to the local client, not that any device received it.
// Returns ErrNotConnected without retrying when the broker link is down.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		if c.metrics != nil {
			c.metrics.PublishFailures.WithLabelValues(topic, "not_connected").Inc()
		}
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qosFireAndForget, false, payload)

	select {
	case <-ctx.Done():
		if c.metrics != nil {
			c.metrics.PublishFailures.WithLabelValues(topic, "context_canceled").Inc()
		}
		return ctx.Err()
	case <-token.Done():
	}

	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.PublishFailures.WithLabelValues(topic, "publish_error").Inc()
		}
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	if c.metrics != nil {
		c.metrics.MessagesPublished.WithLabelValues(topic).Inc()
	}
	return nil
}

// IsConnected reports whether the broker link is currently up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(uint(disconnectQuiesce.Milliseconds()))

	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
	}
	c.logger.Info("bus client closed")
	return nil
}
