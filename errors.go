package onion

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidHandler is returned by Compose when the handler list holds a
	// nil handler.
	ErrInvalidHandler = errors.New("handler must be a non-nil function")

	// ErrNextCalledMultipleTimes is returned from a composed call when a
	// handler invokes its continuation more than once.
	ErrNextCalledMultipleTimes = errors.New("next() called multiple times")

	// ErrInvalidStatus is returned when a status code is not in the status
	// registry.
	ErrInvalidStatus = errors.New("invalid status code")
)

// PanicError is a handler panic converted into an error by the dispatcher.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HTTPError represents an HTTP error with a status code and message.
type HTTPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	// Expose marks the message as safe to send to the client. Client errors
	// (4xx) are exposed by default.
	Expose bool `json:"-"`
	// Header is applied to the error response.
	Header http.Header `json:"-"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, error=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// WithHeader adds a header to send along with the error response.
func (e *HTTPError) WithHeader(key, value string) *HTTPError {
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	e.Header.Add(key, value)
	return e
}

// NewHTTPError creates a new HTTPError with the given code and message.
// An empty message is replaced by the status text of code.
func NewHTTPError(code int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(code)
	}
	return &HTTPError{
		Code:    code,
		Message: message,
		Expose:  code < http.StatusInternalServerError,
	}
}

// WrapError creates a new HTTPError wrapping an existing error.
func WrapError(code int, message string, err error) *HTTPError {
	e := NewHTTPError(code, message)
	e.Err = err
	return e
}

// Common HTTP errors

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, msg)
}

// ErrUnauthorized returns a 401 Unauthorized error.
func ErrUnauthorized(msg string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, msg)
}

// ErrForbidden returns a 403 Forbidden error.
func ErrForbidden(msg string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, msg)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(msg string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, msg)
}

// ErrMethodNotAllowed returns a 405 Method Not Allowed error.
func ErrMethodNotAllowed(msg string) *HTTPError {
	return NewHTTPError(http.StatusMethodNotAllowed, msg)
}

// ErrConflict returns a 409 Conflict error.
func ErrConflict(msg string) *HTTPError {
	return NewHTTPError(http.StatusConflict, msg)
}

// ErrUnprocessableEntity returns a 422 Unprocessable Entity error.
func ErrUnprocessableEntity(msg string) *HTTPError {
	return NewHTTPError(http.StatusUnprocessableEntity, msg)
}

// ErrTooManyRequests returns a 429 Too Many Requests error.
func ErrTooManyRequests(msg string) *HTTPError {
	return NewHTTPError(http.StatusTooManyRequests, msg)
}

// ErrInternal returns a 500 Internal Server Error.
func ErrInternal(msg string) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, msg)
}

// ErrServiceUnavailable returns a 503 Service Unavailable error.
func ErrServiceUnavailable(msg string) *HTTPError {
	return NewHTTPError(http.StatusServiceUnavailable, msg)
}

// statusFromError maps an error returned by the chain to a response status.
func statusFromError(err error) (int, string, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && IsValidStatus(httpErr.Code) {
		return httpErr.Code, httpErr.Message, httpErr.Expose
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}
