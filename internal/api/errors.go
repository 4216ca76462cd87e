package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnsupported = "unsupported"
	ErrCodeCloud       = "cloud_error"
	ErrCodeInternal    = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeCloudError maps a client error to the appropriate HTTP response.
//
// Lookup failures become 404, validation failures 400, capability gaps
// 409, and anything involving the cloud session or transport 502.
func writeCloudError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, nexia.ErrThermostatNotFound),
		errors.Is(err, nexia.ErrZoneNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, nexia.ErrAmbiguousThermostat),
		errors.Is(err, nexia.ErrInvalidValue),
		errors.Is(err, nexia.ErrPresetNotFound):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, nexia.ErrUnsupported):
		writeError(w, http.StatusConflict, ErrCodeUnsupported, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeCloud, err.Error())
	}
}
