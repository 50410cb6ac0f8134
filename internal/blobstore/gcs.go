package blobstore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS archives blobs to a Google Cloud Storage bucket.
type GCS struct {
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCS wraps an existing client. The bucket must already exist.
func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Put writes the object and returns its gs:// URI.
func (g *GCS) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	object := strings.TrimPrefix(path, "/")
	if g.prefix != "" {
		object = g.prefix + "/" + object
	}

	w := g.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.name, object), nil
}
