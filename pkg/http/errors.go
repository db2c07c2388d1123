package http

import (
	"net/http"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// statusCodes maps an HTTP status to the machine-readable code used when a
// caller does not supply a more specific one.
var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "rate_limit_exceeded",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "unavailable",
}

// WriteErrorResponse writes body as JSON. Error responses are never cached
// since they can reveal login or OTP state.
func WriteErrorResponse(w http.ResponseWriter, status int, body ErrorResponse) {
	if body.Error == "" {
		body.Error = statusCodes[status]
	}
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, status, body)
}

// WriteError writes an error body with an explicit code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorResponse(w, status, ErrorResponse{Error: code, Message: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, ErrorResponse{Message: message})
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusUnauthorized, ErrorResponse{Message: message})
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, ErrorResponse{Message: message})
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusTooManyRequests, ErrorResponse{Message: message})
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusInternalServerError, ErrorResponse{Message: message})
}
