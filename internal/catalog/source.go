package catalog

import (
	"context"
	"strings"
)

// Source returns the raw bytes of a catalog data file such as /data/home_data.json.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, path string) ([]byte, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
