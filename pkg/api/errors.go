package api

import (
	"encoding/json"
	"fmt"

	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/pkg/errors"
)

// Input errors raised before any request is sent.
var (
	ErrEmptyDomain = errors.New("Please enter a domain")
	ErrNoDomains   = errors.New("Please enter domains")
	ErrNoSelection = errors.New("Please select at least one domain")
)

// NetworkMessage is shown for transport failures.
const NetworkMessage = "Network error. Please try again."

// Error is a non-2xx answer from the backend.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Detail, e.StatusCode)
}

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return NetworkMessage
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsUnauthorized reports whether err means the user must log in again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, authfetch.ErrNotAuthenticated) || errors.Is(err, authfetch.ErrSessionExpired)
}

// DetailOf returns the message a user should see for err.
func DetailOf(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return fallback
	case IsNetwork(err):
		return NetworkMessage
	case IsUnauthorized(err), isInputError(err):
		return errors.Cause(err).Error()
	}
	return fallback
}

func isInputError(err error) bool {
	return errors.Is(err, ErrEmptyDomain) || errors.Is(err, ErrNoDomains) || errors.Is(err, ErrNoSelection)
}

// decodeError builds an *Error from a failed response body. The detail field
// may be a string or a structured validation list; only strings are surfaced.
func decodeError(status int, body []byte, fallback string) *Error {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	detail := fallback
	if err := json.Unmarshal(body, &payload); err == nil {
		var s string
		if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &s) == nil && s != "" {
			detail = s
		} else if payload.Error != "" {
			detail = payload.Error
		}
	}
	return &Error{StatusCode: status, Detail: detail}
}
