// Package fetcher provides rate-limited, retrying HTTP downloads shared by
// every veille source scraper.
package fetcher

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body. Non-2xx
	// responses are returned as *StatusError.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// DefaultMaxBodySize caps how much of a single response is read into memory.
const DefaultMaxBodySize = 64 << 20

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// ReadAll downloads url and returns at most maxBytes of its body. A zero
// maxBytes uses DefaultMaxBodySize.
func ReadAll(ctx context.Context, f Fetcher, url string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(body, maxBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body %s", url)
	}
	return data, nil
}
