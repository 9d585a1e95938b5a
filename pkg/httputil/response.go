package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var statuses = map[error]int{
	apperrors.ErrValidation:       http.StatusBadRequest,
	apperrors.ErrNotFound:         http.StatusNotFound,
	apperrors.ErrDuplicate:        http.StatusConflict,
	apperrors.ErrInvalidReference: http.StatusUnprocessableEntity,
	apperrors.ErrExpiredInvite:    http.StatusGone,
	apperrors.ErrForbidden:        http.StatusForbidden,
	apperrors.ErrConflict:         http.StatusConflict,
	apperrors.ErrInternal:         http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return statuses[apperrors.Kind(err)]
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes err with the status and code of its kind. Internal errors are reported
// without detail.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperrors.Kind(err)
	message := err.Error()
	if errors.Is(kind, apperrors.ErrInternal) {
		message = ""
	}
	_ = WriteJSON(w, StatusFor(err), ErrorResponse{Error: apperrors.Code(err), Message: message})
}

// WriteErrorMessage writes an error reply with an explicit status and code
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// WriteUnauthorized writes a 401 with a bearer challenge
func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="atrium"`)
	WriteErrorMessage(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
