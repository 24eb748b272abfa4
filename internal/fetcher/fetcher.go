package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Response is a fetched document body plus what the source declared about it.
type Response struct {
	Body io.ReadCloser
	// ContentType is the declared media type, empty when the source has none.
	ContentType string
	// Size is the declared length, -1 when unknown.
	Size int64
}

// Fetcher retrieves the bytes behind a URL or path. Implementations make a
// single attempt unless configured otherwise; callers own retry decisions.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// StatusError is returned when a server answers with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == code
	}
	return false
}
