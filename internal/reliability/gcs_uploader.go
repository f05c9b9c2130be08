package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// uploadTimeout bounds a single GCS upload.
const uploadTimeout = 2 * time.Minute

// GCSUploader stores archives in a Google Cloud Storage bucket
type GCSUploader struct {
	client *storage.Client
	bucket string
	log    zerolog.Logger
}

// NewGCSUploader creates the client. Without a credentials file Application
// Default Credentials are used.
func NewGCSUploader(ctx context.Context, bucket, credentialsFile string, log zerolog.Logger) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{
		client: client,
		bucket: bucket,
		log:    log.With().Str("client", "gcs").Logger(),
	}, nil
}

// Name returns "gcs"
func (u *GCSUploader) Name() string { return "gcs" }

// Close releases the client
func (u *GCSUploader) Close() error { return u.client.Close() }

// Upload stores body under key.
func (u *GCSUploader) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/gzip"

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy archive to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	u.log.Debug().Str("key", key).Int64("size", size).Msg("Uploaded object")
	return nil
}

// Download returns the object body.
func (u *GCSUploader) Download(ctx context.Context, key string) ([]byte, error) {
	rc, err := u.client.Bucket(u.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", u.bucket, key, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// List returns every object under prefix.
func (u *GCSUploader) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := u.client.Bucket(u.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	objects := make([]ObjectInfo, 0)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", u.bucket, err)
		}
		objects = append(objects, ObjectInfo{Key: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

// Delete removes key.
func (u *GCSUploader) Delete(ctx context.Context, key string) error {
	if err := u.client.Bucket(u.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", u.bucket, key, err)
	}
	return nil
}
