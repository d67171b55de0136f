package pipeline

import (
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by a PageCache when no entry exists for a slug.
var ErrCacheMiss = errors.New("page cache miss")

// FetchError wraps a failed page retrieval. Transient errors (timeouts,
// connection resets) are retried; permanent ones (e.g. HTTP 404) are skipped
// immediately.
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
		return fmt.Sprintf("%s fetch error for %s (status %d): %v", kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch error for %s: %v", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewTransientFetchError marks an error as retryable.
func NewTransientFetchError(url string, err error) *FetchError {
	return &FetchError{URL: url, Transient: true, Err: err}
}

// NewPermanentFetchError marks an error as non-retryable.
func NewPermanentFetchError(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Err: err}
}

// IsTransientFetch reports whether err is a retryable fetch failure.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// ParseError signals that an extractor could not locate the expected page
// structure. The page is skipped; the batch continues.
type ParseError struct {
	Vendor Vendor
	Slug   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s/%s: %s", e.Vendor, e.Slug, e.Reason)
}

// ValidationError signals that a single geometry row is missing a required
// field or carries an out-of-range value. Only that size is dropped.
type ValidationError struct {
	SizeLabel string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid geometry row %q: %s %s", e.SizeLabel, e.Field, e.Reason)
}

// IdentityConflict signals an unexpected duplicate under a unique constraint
// outside the get-or-create path. The record is rolled back, the batch
// continues.
type IdentityConflict struct {
	Entity     string
	NaturalKey string
	Err        error
}

func (e *IdentityConflict) Error() string {
	return fmt.Sprintf("identity conflict on %s (%s): %v", e.Entity, e.NaturalKey, e.Err)
}

func (e *IdentityConflict) Unwrap() error { return e.Err }
