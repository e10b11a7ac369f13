// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// Config captures the bucket datasets are uploaded to.
type Config struct {
	Bucket string
}

// objectWriter is the subset of *storage.Writer used for uploads.
type objectWriter interface {
	io.WriteCloser
}

// BlobStore writes dataset artifacts to a configured GCS bucket.
type BlobStore struct {
	bucket    string
	newWriter func(ctx context.Context, path, contentType string) objectWriter
}

var _ harvest.BlobStore = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	bucket := client.Bucket(cfg.Bucket)
	return &BlobStore{
		bucket: cfg.Bucket,
		newWriter: func(ctx context.Context, path, contentType string) objectWriter {
			w := bucket.Object(path).NewWriter(ctx)
			if contentType != "" {
				w.ContentType = contentType
			}
			w.CacheControl = "no-cache"
			return w
		},
	}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
// A failed copy cancels the upload by way of the writer's context.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := s.newWriter(uploadCtx, path, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		cancel()
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
