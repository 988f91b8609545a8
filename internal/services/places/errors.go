package places

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure: the request did not complete,
// returned a non-200 status, or its body could not be decoded.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("places %s request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProviderError is a completed request whose status the provider reported as a failure
type ProviderError struct {
	Op      string
	Status  string
	Message string
}

// Error returns the provider message alone; it is shown to users as-is.
func (e *ProviderError) Error() string {
	return e.Message
}

// IsNetworkError reports whether err wraps a NetworkError
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsProviderError reports whether err wraps a ProviderError
func IsProviderError(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr)
}
