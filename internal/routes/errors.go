package routes

import (
	"errors"
	"net/http"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/jwt"
)

// HTTPError represents an error with an associated HTTP status code and user message
type HTTPError struct {
	Err        error  // The underlying error
	StatusCode int    // HTTP status code
	Message    string // User-friendly message
	Internal   bool   // Whether this is an internal error (hide details from user)
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, err error, message string) *HTTPError {
	return &HTTPError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
		Internal:   statusCode >= 500,
	}
}

// Routes-specific errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInternalServer   = errors.New("internal server error")
)

// errorStatusMap maps errors to HTTP status codes. The fault sentinels carry
// the core's whole taxonomy; everything unknown is a 500.
var errorStatusMap = map[error]int{
	// 400 Bad Request
	fault.ErrValidation:   http.StatusBadRequest,
	fault.ErrInvalidState: http.StatusBadRequest,
	ErrMissingParameter:   http.StatusBadRequest,
	ErrInvalidParameter:   http.StatusBadRequest,

	// 401 Unauthorized
	ErrUnauthorized:      http.StatusUnauthorized,
	jwt.ErrNonValidToken: http.StatusUnauthorized,

	// 403 Forbidden
	fault.ErrForbidden: http.StatusForbidden,

	// 404 Not Found
	fault.ErrNotFound: http.StatusNotFound,

	// 409 Conflict
	fault.ErrConflict: http.StatusConflict,

	// 500 Internal Server Error
	ErrInternalServer: http.StatusInternalServerError,
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	if status, ok := errorStatusMap[err]; ok {
		return status
	}

	// Check if error wraps a known error
	for knownErr, status := range errorStatusMap {
		if errors.Is(err, knownErr) {
			return status
		}
	}

	return http.StatusInternalServerError
}

// GetErrorMessage returns a user-facing message for an error. Internal
// details are hidden for 5xx responses.
func GetErrorMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}

	if GetErrorStatus(err) >= 500 {
		return "An internal error occurred"
	}
	return err.Error()
}
