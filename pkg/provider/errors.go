package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested prefix or object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")

	// ErrTimeout indicates a request attempt exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedObject indicates a listed entry is missing a required field.
	ErrMalformedObject = errors.New("malformed object in listing")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "ListWithDelimiter").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key or prefix, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedObjectError reports a listing entry missing a required field.
type MalformedObjectError struct {
	// Field is the missing or invalid field ("Key", "Size", "LastModified", "Prefix").
	Field string

	// Key is the object key when it is known.
	Key string

	// Index is the entry's position within its page.
	Index int
}

func (e *MalformedObjectError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("entry %d (%s): missing %s", e.Index, e.Key, e.Field)
	}
	return fmt.Sprintf("entry %d: missing %s", e.Index, e.Field)
}

// Is reports ErrMalformedObject so callers can use errors.Is.
func (e *MalformedObjectError) Is(target error) bool {
	return target == ErrMalformedObject
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsTimeout returns true if the error indicates a request attempt timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsMalformed returns true if the error indicates a listing entry was missing fields.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedObject)
}

// IsSetupError returns true for errors that make every partition fail the
// same way: bad credentials, missing bucket, or denied access. These abort a
// run before dispatch instead of being reported per partition.
func IsSetupError(err error) bool {
	return IsInvalidCredentials(err) || IsBucketNotFound(err) || IsAccessDenied(err)
}

// ErrorCode returns a stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsAccessDenied(err):
		return "ACCESS_DENIED"
	case IsBucketNotFound(err), IsNotFound(err):
		return "NOT_FOUND"
	case IsInvalidCredentials(err):
		return "INVALID_CREDENTIALS"
	case IsThrottled(err):
		return "THROTTLED"
	case IsTimeout(err):
		return "TIMEOUT"
	case IsProviderUnavailable(err):
		return "PROVIDER_UNAVAILABLE"
	case IsMalformed(err):
		return "MALFORMED_OBJECT"
	default:
		return "INTERNAL"
	}
}
