package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/logging"
)

// GCSProvider implements Provider on top of Google Cloud Storage.
type GCSProvider struct {
	Client     *storage.Client
	BucketName string
}

// NewGCSProvider initializes a GCS client and verifies the bucket exists.
// Authentication goes through Application Default Credentials.
func NewGCSProvider(ctx context.Context, bucketName string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Fail fast on startup when the bucket is missing or unreadable.
	bkt := client.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", bucketName, err)
	}

	return &GCSProvider{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// Save uploads data to an object in the configured bucket, overwriting
// any previous content.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.Client.Bucket(g.BucketName).Object(objectName).NewWriter(ctx)

	if _, err := wc.Write(data); err != nil {
		// Close anyway so the writer's resources are released. The write
		// error is the one worth returning.
		closeErr := wc.Close()
		logging.L.Warn("Failed to close GCS writer after write failure", zap.Error(err), zap.Error(closeErr))
		return fmt.Errorf("failed to write data to GCS object %s: %w", objectName, err)
	}

	// Close finalizes the upload. Until it returns the object is not
	// guaranteed to exist.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for object %s: %w", objectName, err)
	}

	return nil
}

// Exists reports whether the object already holds content. Used by the
// image uploader to skip re-uploading covers it has seen before.
func (g *GCSProvider) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := g.Client.Bucket(g.BucketName).Object(objectName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat GCS object %s: %w", objectName, err)
	}
	return true, nil
}

// Close releases the underlying GCS client.
func (g *GCSProvider) Close() error {
	return g.Client.Close()
}
