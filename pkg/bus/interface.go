package bus

import "context"

// ClientInterface defines the interface for bus operations.
// This interface enables easier testing through mocking and dependency injection.
type ClientInterface interface {
	// Subscribe registers a handler for a topic filter. The subscription
	// is re-established after reconnects.
	Subscribe(topic string, handler MessageHandler) error

	// Publish sends a payload to a topic, fire-and-forget. Success means
	// local enqueue only. Returns ErrNotConnected when the link is down.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected reports whether the broker link is currently up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Ensure Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)
