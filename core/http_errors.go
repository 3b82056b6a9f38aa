package core

import "net/http"

// HTTPError represents an HTTP error with a status code and a stable machine
// key. The Key is what API clients branch on; the status code is transport
// detail.
type HTTPError struct {
	Code    int    // HTTP status code
	Key     string // Stable error key (e.g., "not_found", "unauthorized")
	message string
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized        = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrPaymentRequired     = HTTPError{Code: http.StatusPaymentRequired, Key: "payment_required"}
	ErrForbidden           = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnprocessableEntity = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}

	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrBadGateway          = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
)

// NewHTTPError creates a custom HTTP error with the given status code and key.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

// WithMessage attaches a human-readable message, keeping the status code and
// key stable for clients.
func (e HTTPError) WithMessage(msg string) HTTPError {
	e.message = msg
	return e
}

// Message returns the attached human-readable message, or the default status
// text when none was set.
func (e HTTPError) Message() string {
	if e.message != "" {
		return e.message
	}
	return http.StatusText(e.Code)
}
