package jobs

import (
	"fmt"
	"net/http"
)

// FetchError is returned once every fetch attempt for a URL has failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// UnsupportedSourceError is returned when no source type matches a URL host.
type UnsupportedSourceError struct {
	URL string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported job board url: %s", e.URL)
}

// ParseError is returned when a page lacks the markup a source type expects.
type ParseError struct {
	SourceType string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s page: %s", e.SourceType, e.Reason)
}

// StorageError wraps a persistence failure for one record.
type StorageError struct {
	RecordID string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store record %s: %v", e.RecordID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
