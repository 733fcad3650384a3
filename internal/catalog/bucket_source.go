package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"finitefield.org/arcade/internal/platform/storage"
)

// ObjectReader downloads one object. Satisfied by *storage.Reader.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) (storage.Object, error)
}

// BucketSource reads data files from a Cloud Storage bucket laid out like the
// static web origin.
type BucketSource struct {
	reader ObjectReader
	bucket string
	prefix string
}

// NewBucketSource constructs a BucketSource. prefix is prepended to every data path.
func NewBucketSource(reader ObjectReader, bucket, prefix string) (*BucketSource, error) {
	if reader == nil {
		return nil, errors.New("catalog: object reader is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("catalog: bucket is required")
	}
	return &BucketSource{
		reader: reader,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// Fetch implements Source.
func (s *BucketSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	object := strings.TrimLeft(path, "/")
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}

	obj, err := s.reader.ReadObject(ctx, s.bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, &FetchError{Path: path, Status: http.StatusNotFound, Err: err}
		}
		return nil, &FetchError{Path: path, Err: err}
	}
	if !isJSONContentType(obj.ContentType) {
		return nil, &FetchError{Path: path, Err: ErrNotJSON}
	}
	if int64(len(obj.Data)) > maxPayloadBytes {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxPayloadBytes)}
	}
	return obj.Data, nil
}
