package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"laser-vision-backend/internal/services"
	"laser-vision-backend/internal/storage"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, body interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps service and storage errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidData),
		errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, storage.ErrParentMissing),
		errors.Is(err, services.ErrMissingPath),
		errors.Is(err, services.ErrMissingWebPath),
		errors.Is(err, services.ErrAddressNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
