package textgen

import (
	"errors"
	"fmt"
)

// ErrNoJSON is returned when a response carries no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found in response")

// ServiceUnavailableError is a transient provider failure
// (rate limiting, overload, 5xx, network). Retries happen inside the provider
// before this is returned.
type ServiceUnavailableError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s unavailable (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// IsTransientStatus reports whether an HTTP status denotes a transient failure.
func IsTransientStatus(code int) bool {
	switch {
	case code == 408, code == 409, code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
