// Package mgmt implements the management control plane: room lifecycle,
// admin/ban maintenance, and sync triggers, exposed over HTTP under
// /management with API-key authentication.
package mgmt

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is an error with a natural HTTP status. Handlers map every
// failure to one of these; anything unrecognized becomes a 500.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// ErrUnauthorized rejects a missing or mismatched API key.
func ErrUnauthorized(msg string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: msg}
}

// ErrNotFound reports an unknown room or resource.
func ErrNotFound(msg string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: msg}
}

// ErrBadRequest reports an invalid request body or parameter.
func ErrBadRequest(msg string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: msg}
}

// ErrForbidden reports a disallowed operation.
func ErrForbidden(msg string) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: msg}
}

// ErrServiceUnavailable reports exhausted capacity.
func ErrServiceUnavailable(msg string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Message: msg}
}

// ErrInternal reports a database or internal channel failure.
func ErrInternal(msg string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: msg}
}

// respondError writes the JSON error envelope for err.
func respondError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
