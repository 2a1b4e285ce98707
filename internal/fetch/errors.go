package fetch

import "fmt"

// InvalidRequestError represents a window or descriptor the fetcher refuses
// to act on, such as a negative start or a zero length.
type InvalidRequestError struct {
	Field  string // The offending field (e.g., "start", "bytes", "url")
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// SourceUnavailableError represents a local source that cannot be read: the
// file is missing, unreadable or not a regular file.
type SourceUnavailableError struct {
	Location string // Path of the source
	Reason   string // Human-readable explanation
	Err      error  // Underlying error, if any
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %s", e.Location, e.Reason)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// UpstreamError represents a remote origin that answered, but not with the
// requested range. StatusCode, Body and ContentType carry the origin response
// so it can be relayed to the caller.
type UpstreamError struct {
	StatusCode  int    // Status returned by the origin
	Body        []byte // Leading bytes of the origin response body
	ContentType string // Content type of the origin response
	Reason      string // Human-readable explanation
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Reason)
}

// RangeIgnored reports whether the origin answered with a success status that
// does not satisfy the range request.
func (e *UpstreamError) RangeIgnored() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// TransportError represents network failures reaching a remote origin,
// including dial, TLS and response header timeouts.
type TransportError struct {
	Operation string // The operation that failed (e.g., "get_range")
	Err       error  // Underlying error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
