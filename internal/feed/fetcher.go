package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const maxDocumentSize = 10 << 20 // 10MB

// FetchError reports a failed feed retrieval (network error, timeout or
// non-2xx response). A failed feed never aborts the rest of the run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves raw feed documents over HTTP with bounded timeouts and
// a small fixed number of retries with exponential backoff.
type Fetcher struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

func NewFetcher(timeout time.Duration, maxRetries int) *Fetcher {
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// Fetch returns the raw bytes of the feed document at url. Transient errors
// are retried up to the configured attempt count before giving up.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.retryDelay * time.Duration(1<<(attempt-1))
			log.Printf("Retrying feed %s in %v (attempt %d/%d)", url, delay, attempt+1, f.maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &FetchError{URL: url, Err: ctx.Err()}
			}
		}

		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}

	return nil, &FetchError{URL: url, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "gorsstag/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
	}

	return data, nil
}
