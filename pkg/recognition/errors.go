package recognition

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors. Both are per-tick drops: the caller logs them and
// carries on with the next tick.
var (
	// ErrTransport is returned on network failure, timeout or a non-2xx
	// status.
	ErrTransport = errors.New("recognition: transport error")

	// ErrMalformedResponse is returned when the body is not JSON or carries
	// neither a gesture nor an image.
	ErrMalformedResponse = errors.New("recognition: malformed response")

	// ErrNoEndpoint is returned by NewClient without an endpoint.
	ErrNoEndpoint = errors.New("recognition: endpoint required")
)

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the (truncated) response body.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition: API error %d", e.StatusCode)
	}
	return fmt.Sprintf("recognition: API error %d: %s", e.StatusCode, e.Message)
}

// Unwrap makes every APIError a transport error.
func (e *APIError) Unwrap() error {
	return ErrTransport
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsDropped reports whether err only drops the current tick's result.
func IsDropped(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformedResponse)
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// transportError wraps err as ErrTransport, keeping err in the chain.
func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
