package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotJSON indicates the source answered with a non-JSON content type.
	ErrNotJSON = errors.New("catalog: response is not JSON")
	// ErrTooLarge indicates a data file over the size cap.
	ErrTooLarge = errors.New("catalog: data file too large")
	// ErrInvalidFormat indicates the payload parsed but is not a JSON array.
	ErrInvalidFormat = errors.New("catalog: invalid data format, expected array")
	// ErrMalformed indicates the payload could not be parsed.
	ErrMalformed = errors.New("catalog: invalid JSON format")
	// ErrEmptyCatalog indicates a category file without any games.
	ErrEmptyCatalog = errors.New("catalog: no games found")
	// ErrGameNotFound indicates neither id nor title matched.
	ErrGameNotFound = errors.New("catalog: game not found")
	// ErrInvalidCategory indicates the category cannot be mapped to a data file.
	ErrInvalidCategory = errors.New("catalog: invalid category")
)

// FetchError describes a failed retrieval of a data file.
type FetchError struct {
	Path   string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("catalog: fetch %s", e.Path)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: %s (%d)", msg, http.StatusText(e.Status), e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NotFound reports whether the data file does not exist at the source.
func (e *FetchError) NotFound() bool {
	return e != nil && e.Status == http.StatusNotFound
}
