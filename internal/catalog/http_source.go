package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// maxPayloadBytes caps one data file. Tests lower it.
var maxPayloadBytes int64 = 16 << 20

// HTTPSource fetches data files from a static web origin.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// HTTPSourceOption customises an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithHTTPTimeout sets the per-request timeout of the default client.
func WithHTTPTimeout(timeout time.Duration) HTTPSourceOption {
	return func(s *HTTPSource) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// NewHTTPSource constructs a source rooted at baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPSourceOption) (*HTTPSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog: base URL is required")
	}
	source := &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(source)
		}
	}
	return source, nil
}

// Fetch issues GET <baseURL><path>.
func (s *HTTPSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{Path: path, Status: resp.StatusCode}
	}
	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		return nil, &FetchError{Path: path, Err: ErrNotJSON}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > maxPayloadBytes {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxPayloadBytes)}
	}
	return body, nil
}
