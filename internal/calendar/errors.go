package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveFeeds is returned when a property has nothing to sync.
	ErrNoActiveFeeds = errors.New("property has no active feeds")
	// ErrAllFeedsFailed is returned when every feed of a property failed to fetch or parse.
	ErrAllFeedsFailed = errors.New("all feeds failed")
)

// FetchError is a network, HTTP or read failure for a single feed source.
// It never aborts the sync of the property.
type FetchError struct {
	FeedID     string
	URL        string // redacted
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetching feed %s (%s): timed out", e.FeedID, e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetching feed %s (%s): unexpected status %d", e.FeedID, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetching feed %s (%s): %v", e.FeedID, e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError is a persistence failure. It is fatal to the current sync step;
// retrying the whole sync is safe.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
