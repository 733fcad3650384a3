package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object is the payload and metadata of a downloaded object.
type Object struct {
	Data        []byte
	ContentType string
}

// Reader provides object download operations against Cloud Storage.
type Reader struct {
	client *gcs.Client
}

// NewReader constructs a Reader backed by the provided Cloud Storage client.
func NewReader(client *gcs.Client) (*Reader, error) {
	if client == nil {
		return nil, errors.New("storage reader: client is required")
	}
	return &Reader{client: client}, nil
}

// ReadObject downloads bucket/object in full.
func (r *Reader) ReadObject(ctx context.Context, bucket, object string) (Object, error) {
	if r == nil || r.client == nil {
		return Object{}, errors.New("storage reader: client is not initialised")
	}

	bucket = strings.TrimSpace(bucket)
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if bucket == "" || object == "" {
		return Object{}, errors.New("storage reader: bucket and object must be provided")
	}

	rc, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return Object{}, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, object)
		}
		return Object{}, fmt.Errorf("storage reader: open gs://%s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Object{}, fmt.Errorf("storage reader: read gs://%s/%s: %w", bucket, object, err)
	}
	return Object{Data: data, ContentType: rc.Attrs.ContentType}, nil
}

// Close releases the underlying client.
func (r *Reader) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
