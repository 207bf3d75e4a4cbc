package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kislikjeka/chargehub/internal/shared/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondAppError maps an application error to its HTTP status and body.
func respondAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		respondError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var status int
	switch appErr.Code {
	case apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeInvalidAmount,
		apperrors.ErrCodeWalletInactive,
		apperrors.ErrCodeInsufficientBalance,
		apperrors.ErrCodeRequestMissing:
		status = http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.ErrCodePermissionDenied:
		status = http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeLockBusy,
		apperrors.ErrCodeConcurrency:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	respondJSON(w, ErrorResponse{Error: appErr.Message, Code: appErr.Code}, status)
}
