package dispatch

import (
	"errors"
	"fmt"
)

// ErrNoEndpointsAvailable matches every *NoEndpointsError via errors.Is.
var ErrNoEndpointsAvailable = errors.New("no dispatch endpoints available")

// ConfigurationError reports an unusable coordinator setup.
// It is raised at construction and never retried.
type ConfigurationError struct {
	Reason string // Reason describes what is missing
}

func (e *ConfigurationError) Error() string {
	return "dispatch configuration: " + e.Reason
}

// NoEndpointsError is returned when the pool ran dry during a dispatch.
// Cause is the last per-endpoint failure, nil if the pool was already empty.
type NoEndpointsError struct {
	Attempts int   // Attempts is the number of endpoints tried by this call
	Cause    error // Cause is the terminal failure
}

func (e *NoEndpointsError) Error() string {
	if e.Cause == nil {
		return ErrNoEndpointsAvailable.Error()
	}

	return fmt.Sprintf("%s after %d attempts:\n%v", ErrNoEndpointsAvailable, e.Attempts, e.Cause)
}

// Unwrap returns the terminal cause.
func (e *NoEndpointsError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrNoEndpointsAvailable.
func (e *NoEndpointsError) Is(target error) bool {
	return target == ErrNoEndpointsAvailable
}

// TransportError is a failed dispatch call to one endpoint.
type TransportError struct {
	Endpoint string // Endpoint is the dispatcher that failed
	Err      error  // Err is the underlying failure
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch to %s:\n%v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodingError is a payload from one endpoint that is not a usable session.
type DecodingError struct {
	Endpoint string // Endpoint is the dispatcher that answered
	Err      error  // Err describes the decoding failure
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode dispatch from %s:\n%v", e.Endpoint, e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// StatusError is a well-formed response with a non-OK status.
type StatusError struct {
	Status  Status // Status is the dispatcher result code
	Message string // Message is the dispatcher explanation
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "dispatcher status " + e.Status.String()
	}

	return fmt.Sprintf("dispatcher status %s: %s", e.Status, e.Message)
}
