package content

import (
	"errors"
	"fmt"
)

// ErrRobotsDisallowed marks a URL the source's robots.txt forbids. It is a
// permanent failure and is never retried.
var ErrRobotsDisallowed = errors.New("robots.txt disallows url")

// FetchError classifies a failed fetch. Transient failures are retried with
// backoff; permanent failures (robots, 4xx) are not.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s fetch failure for %s (status %d): %v", kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch failure for %s: %v", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewTransientFetchError wraps a retryable failure. status is zero for
// network-level errors.
func NewTransientFetchError(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Transient: true, Err: err}
}

// NewPermanentFetchError wraps a non-retryable failure such as a 4xx.
func NewPermanentFetchError(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Err: err}
}

// ExtractionError marks a malformed or unparseable document. Extraction is
// retried up to a cap, then the item is permanently failed with the last
// error recorded.
type ExtractionError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.URL, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is a fetch failure worth retrying.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// IsPermanentFetch reports whether err is a fetch failure that must not be
// retried.
func IsPermanentFetch(err error) bool {
	if errors.Is(err, ErrRobotsDisallowed) {
		return true
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return !fe.Transient
	}
	return false
}
