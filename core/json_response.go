package core

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
)

// JSONResponse is the standard JSON response envelope.
type JSONResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains client-safe error information.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

// JSON writes a success response with the given payload.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{Data: data})
}

// JSONError writes an error response. ValidationError renders with field
// details; HTTPError renders with its code and key; anything else collapses
// to a generic 500 so internal causes never leak to the client.
func JSONError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}

	var valErr ValidationError
	var httpErr HTTPError
	switch {
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
		detail.Code = "validation_error"
		detail.Message = "One or more fields are invalid."
		if len(valErr) > 0 {
			detail.Details = make(map[string][]string, len(valErr))
			maps.Copy(detail.Details, valErr)
		}
	case errors.As(err, &httpErr):
		status = httpErr.Code
		detail.Code = httpErr.Key
		detail.Message = clientMessage(httpErr)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{Error: detail})
}

// clientMessage maps error keys to client-actionable messages. The messages
// are intentionally uniform: a Pro denial reads the same whether it came from
// a cache miss, a failed verification, or no purchase at all.
func clientMessage(err HTTPError) string {
	switch err.Key {
	case ErrProRequired.Key:
		return "This feature requires Pro access."
	case ErrTooManyRequests.Key:
		return "Too many requests. Please try again later."
	case ErrUnauthorized.Key:
		return "Your session is invalid."
	default:
		return http.StatusText(err.Code)
	}
}
