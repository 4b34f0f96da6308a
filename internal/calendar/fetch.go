package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hostdesk/backend/internal/storage/models"
)

const userAgent = "hostdesk-calendar-sync/1.0"

// Fetcher downloads feeds over HTTP(S).
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
}

// NewFetcher creates a fetcher. Every request is bounded by timeout and
// bodies larger than maxBytes are rejected.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Fetch downloads the feed of source. Any failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, source models.FeedSource) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	fail := func(status int, err error) error {
		return &FetchError{
			FeedID:     source.ID,
			URL:        redactURL(source.URL),
			StatusCode: status,
			Timeout:    isTimeout(ctx, err),
			Err:        err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.1")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(resp.StatusCode, fmt.Errorf("calendar returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fail(0, fmt.Errorf("reading body: %w", err))
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fail(0, fmt.Errorf("feed larger than %d bytes", f.maxBytes))
	}

	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redactURL keeps only scheme and host. Feed URLs embed secret tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}
