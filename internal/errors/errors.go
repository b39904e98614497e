package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type Category string

const (
	CategoryProvider Category = "PROVIDER" // content provider reachability
	CategoryEngine   Category = "ENGINE"   // external download engine
	CategoryAuth     Category = "AUTH"     // credential/session failures
	CategoryRequest  Category = "REQUEST"  // malformed client requests
	CategoryUnknown  Category = "UNKNOWN"  // unclassified
)

// OpError represents a failure while talking to the provider or the
// download engine. Retryable distinguishes transient conditions that the
// caller absorbs with backoff from ones that must escalate.
type OpError struct {
	Err        error
	Category   Category
	Retryable  bool
	Timestamp  time.Time
	Resource   string // URL, handle or mode being accessed
	StatusCode int    // HTTP status when applicable
}

func (e *OpError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status: %d): %v", e.Category, e.Resource, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Common sentinel errors.
var (
	ErrDeadLink          = New("link is no longer available")
	ErrNoValidLinks      = New("no valid links survived verification")
	ErrJobNotFound       = New("job not found")
	ErrEngineUnavailable = New("download engine unavailable")
	ErrAuthentication    = New("authentication failed")
	ErrInvalidRequest    = New("invalid request")
)

// NewProviderError creates a provider-side transient error.
func NewProviderError(err error, resource string, retryable bool) *OpError {
	return &OpError{
		Err:       err,
		Category:  CategoryProvider,
		Retryable: retryable,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewEngineError creates a download-engine error. 5xx-class and timeout
// failures are transient; the caller retries with backoff before surfacing
// engine unavailability.
func NewEngineError(err error, resource string, statusCode int) *OpError {
	retryable := statusCode == 0 || statusCode == 429 || (statusCode >= 500 && statusCode != 501)

	return &OpError{
		Err:        err,
		Category:   CategoryEngine,
		Retryable:  retryable,
		Timestamp:  time.Now(),
		Resource:   resource,
		StatusCode: statusCode,
	}
}

// NewAuthError creates a non-retriable credential failure. These escalate to
// a process-level degraded state instead of being retried.
func NewAuthError(err error, resource string) *OpError {
	return &OpError{
		Err:       err,
		Category:  CategoryAuth,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewRequestError creates an error for a malformed protocol request.
func NewRequestError(err error, resource string) *OpError {
	return &OpError{
		Err:       err,
		Category:  CategoryRequest,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// IsRetryable determines if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var opErr *OpError
	if As(err, &opErr) {
		return opErr.Retryable
	}

	return false
}

// IsAuth determines if the error is a credential failure.
func IsAuth(err error) bool {
	if Is(err, ErrAuthentication) {
		return true
	}

	var opErr *OpError
	return As(err, &opErr) && opErr.Category == CategoryAuth
}

// IsEngine determines if the error originated at the download engine.
func IsEngine(err error) bool {
	var opErr *OpError
	return As(err, &opErr) && opErr.Category == CategoryEngine
}

// GetStatusCode extracts the HTTP status code from an error if available.
func GetStatusCode(err error) (int, bool) {
	var opErr *OpError
	if As(err, &opErr) {
		return opErr.StatusCode, true
	}
	return 0, false
}
