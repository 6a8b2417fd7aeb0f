// Package mock provides mock implementations of the bus package interfaces for testing.
package mock

import (
	"context"
	"sync"

	"procodus.dev/drip-monitor/pkg/bus"
)

// Client is a mock implementation of bus.ClientInterface for testing.
// It tracks method calls and allows configuring return values and behavior.
type Client struct {
	mu sync.Mutex

	// SubscribeFunc is called when Subscribe is invoked. If nil, returns SubscribeError.
	SubscribeFunc func(topic string, handler bus.MessageHandler) error
	// SubscribeError is returned by Subscribe if SubscribeFunc is nil.
	SubscribeError error
	// Handlers records the handler registered per topic, so tests can
	// inject messages by invoking them directly.
	Handlers map[string]bus.MessageHandler

	// PublishFunc is called when Publish is invoked. If nil, returns PublishError.
	PublishFunc func(ctx context.Context, topic string, payload []byte) error
	// PublishError is returned by Publish if PublishFunc is nil.
	PublishError error
	// PublishCalls tracks all calls to Publish with their arguments.
	PublishCalls []PublishCall

	// Connected is returned by IsConnected.
	Connected bool

	// CloseError is returned by Close.
	CloseError error
	// CloseCalls tracks the number of times Close was called.
	CloseCalls int
}

// PublishCall records the arguments to a Publish call.
type PublishCall struct {
	Ctx     context.Context
	Topic   string
	Payload []byte
}

// Subscribe implements bus.ClientInterface.
func (c *Client) Subscribe(topic string, handler bus.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Handlers == nil {
		c.Handlers = map[string]bus.MessageHandler{}
	}
	c.Handlers[topic] = handler

	if c.SubscribeFunc != nil {
		return c.SubscribeFunc(topic, handler)
	}
	return c.SubscribeError
}

// Publish implements bus.ClientInterface.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	c.PublishCalls = append(c.PublishCalls, PublishCall{Ctx: ctx, Topic: topic, Payload: payload})
	fn := c.PublishFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, topic, payload)
	}
	return c.PublishError
}

// IsConnected implements bus.ClientInterface.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Connected
}

// Close implements bus.ClientInterface.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	return c.CloseError
}

// Deliver invokes the handler registered for the given topic filter, as if
// a message arrived from the broker on concreteTopic.
func (c *Client) Deliver(filter, concreteTopic string, payload []byte) bool {
	c.mu.Lock()
	handler, ok := c.Handlers[filter]
	c.mu.Unlock()

	if !ok {
		return false
	}
	handler(concreteTopic, payload)
	return true
}

var _ bus.ClientInterface = (*Client)(nil)
