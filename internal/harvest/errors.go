package harvest

import (
	"context"
	"errors"
	"fmt"
)

// Failure classes. Wrap them with fmt.Errorf("...: %w", ErrX) and classify
// with KindOf.
var (
	ErrNetworkFailure     = errors.New("network failure")
	ErrParseFailure       = errors.New("parse failure")
	ErrEmptyContent       = errors.New("empty content")
	ErrListingUnavailable = errors.New("listing unavailable")
	ErrNotifyFailure      = errors.New("notify failure")
)

// ErrorKind is the serialized form of a failure class.
type ErrorKind string

// Error kinds recorded in RunResult.Errors.
const (
	KindNone               ErrorKind = ""
	KindNetworkFailure     ErrorKind = "network_failure"
	KindParseFailure       ErrorKind = "parse_failure"
	KindEmptyContent       ErrorKind = "empty_content"
	KindListingUnavailable ErrorKind = "listing_unavailable"
	KindNotifyFailure      ErrorKind = "notify_failure"
)

// KindOf classifies err. ListingUnavailable wins over the cause it wraps
// because it describes the scope of the failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrListingUnavailable):
		return KindListingUnavailable
	case errors.Is(err, ErrEmptyContent):
		return KindEmptyContent
	case errors.Is(err, ErrParseFailure):
		return KindParseFailure
	case errors.Is(err, ErrNotifyFailure):
		return KindNotifyFailure
	default:
		return KindNetworkFailure
	}
}

// IsCanceled reports whether err stems from context cancellation or expiry.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// FetchError is returned once a locator exhausted its attempts.
type FetchError struct {
	Locator  string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Locator, e.Attempts, e.Err)
}

// Unwrap exposes both the failure class and the last cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrNetworkFailure, e.Err}
}

// StatusError reports an HTTP response outside the 2xx range.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}
