// Package client provides a typed HTTP client for the accounting API,
// used by collectors and plugins. All methods are safe for concurrent use.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a structured error returned by the accounting server,
// carrying the HTTP status code and the server's error body.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auditor: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsDuplicate returns true if the error is a 409.
func IsDuplicate(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsValidation returns true if the error is a 400.
func IsValidation(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsServerError returns true if the error is a 5xx.
func IsServerError(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode >= 500
	}
	return false
}

// IsTimeout returns true when the request was cut short by the configured
// timeout or a deadline on the context.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hasStatus(err error, status int) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == status
	}
	return false
}
