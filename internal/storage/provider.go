// Package storage abstracts blob storage for serialized album chunks and
// cover images. The GCS implementation is the production backend; the
// memory and noop providers back tests and local runs.
package storage

import "context"

// Provider writes and probes blobs by object name.
type Provider interface {
	// Save writes data under objectName, overwriting any existing blob.
	Save(ctx context.Context, objectName string, data []byte) error

	// Exists reports whether objectName already holds a blob.
	Exists(ctx context.Context, objectName string) (bool, error)
}

// NoOpProvider discards writes and reports nothing stored. Used when blob
// storage is disabled in config.
type NoOpProvider struct{}

// NewNoOpProvider returns a provider that does nothing.
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

func (p *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

func (p *NoOpProvider) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}
