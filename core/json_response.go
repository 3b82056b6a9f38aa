package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorDetail is the error envelope carried by non-2xx JSON responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes v as a JSON response with the given status. Encoding failures
// after the header is written cannot be reported to the client, so they are
// returned for the caller to log.
func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// JSONError writes err as a JSON error envelope. An HTTPError picks its own
// status code and key; anything else becomes a 500 with a generic key so
// internal error text never leaks to clients.
func JSONError(w http.ResponseWriter, err error) error {
	httpErr := ErrInternalServerError
	var known HTTPError
	if errors.As(err, &known) {
		httpErr = known
	}

	return JSON(w, httpErr.Code, errorResponse{
		Error: ErrorDetail{
			Code:    httpErr.Key,
			Message: httpErr.Message(),
		},
	})
}
