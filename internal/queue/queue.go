// Package queue defines the interfaces for a message queue provider.
// This abstraction allows the application to be independent of a specific
// message queue implementation (e.g., GCP Pub/Sub, RabbitMQ, Kafka).
package queue

import (
	"context"
)

// Provider defines the common interface for a message queue. Publish must
// not return before the broker has accepted the message; the publisher
// job updates session state based on that guarantee.
type Provider interface {
	// Publish sends one message with optional attributes to the
	// configured topic and waits for the broker's acknowledgement.
	Publish(ctx context.Context, data []byte, attributes map[string]string) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpProvider is a queue provider that performs no operations. It is
// useful for running the pipeline without a real message queue.
type NoOpProvider struct{}

// Publish for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Publish(_ context.Context, _ []byte, _ map[string]string) error { return nil }

// Close for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Close() error { return nil }
