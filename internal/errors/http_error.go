package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTPError with the given code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// ErrUnauthorized builds a 401 HTTPError.
var ErrUnauthorized = func(msg string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, msg) }

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes err as a JSON error body. Domain errors keep their code and
// message, HTTPErrors their status, and anything else becomes a 500.
func WriteJSON(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: "Internal", Message: "internal server error"}

	if de, ok := AsDomain(err); ok {
		status = de.Status
		body = errorBody{Error: de.Code, Message: de.Message}
	} else if he, ok := asHTTP(err); ok {
		status = he.Code
		body = errorBody{Error: http.StatusText(he.Code), Message: he.Message}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
