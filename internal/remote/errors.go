package remote

import (
	"errors"
	"fmt"
	"net/http"

	"udpadijaya/posagent/internal/domain"
)

// RequestError is a failed call to the back-office API: either a non-2xx
// response (StatusCode set) or a transport failure (Cause set).
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Cause)
	default:
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

func (e *RequestError) Is(target error) bool {
	switch target {
	case domain.ErrRemoteRequestFailed:
		return true
	case domain.ErrAuthenticationExpired:
		return e.StatusCode == http.StatusUnauthorized
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// StatusCode returns the HTTP status behind err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// Message returns the remote message behind err, falling back to err.Error().
func Message(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
