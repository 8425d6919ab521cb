package keygate

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK.
var (
	// ErrInvalidKey is returned when the token, app id or hardware id does
	// not identify a key.
	ErrInvalidKey = errors.New("keygate: invalid key")

	// ErrKeyInactive is returned when the key has been revoked.
	ErrKeyInactive = errors.New("keygate: key not active")

	// ErrActivationsExhausted is returned when the key has no activation
	// budget left.
	ErrActivationsExhausted = errors.New("keygate: no further activations allowed")
)

// APIError represents an unexpected error response from the keygate API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keygate: API error %d: %s", e.StatusCode, e.Message)
}
