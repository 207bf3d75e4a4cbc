package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code    string // Error code for client
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeWalletInactive      = "WALLET_INACTIVE"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeRequestMissing      = "REQUEST_MISSING"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeLockBusy            = "LOCK_BUSY"
	ErrCodeConcurrency         = "CONCURRENCY"
	ErrCodeTransferFailed      = "TRANSFER_FAILED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// InvalidInput creates an invalid input error
func InvalidInput(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// InvalidAmount creates an invalid amount error
func InvalidAmount(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidAmount, Message: message}
}

// WalletInactive creates a wallet inactive error
func WalletInactive(message string) *AppError {
	return &AppError{Code: ErrCodeWalletInactive, Message: message}
}

// InsufficientBalance creates an insufficient balance error
func InsufficientBalance(message string) *AppError {
	return &AppError{Code: ErrCodeInsufficientBalance, Message: message}
}

// RequestMissing creates an error for a credit request that is absent or
// no longer WAITING.
func RequestMissing(message string) *AppError {
	return &AppError{Code: ErrCodeRequestMissing, Message: message}
}

// PermissionDenied creates a permission denied error
func PermissionDenied(message string) *AppError {
	return &AppError{Code: ErrCodePermissionDenied, Message: message}
}

// LockBusy creates an error for a wallet pair that could not be locked
func LockBusy(message string) *AppError {
	return &AppError{Code: ErrCodeLockBusy, Message: message}
}

// Concurrency creates an error for exhausted optimistic-commit retries
func Concurrency(message string) *AppError {
	return &AppError{Code: ErrCodeConcurrency, Message: message}
}

// TransferFailed wraps the cause of a compensated transfer failure
func TransferFailed(err error) *AppError {
	return &AppError{Code: ErrCodeTransferFailed, Message: "transfer failed", Err: err}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message}
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Err: err}
}

// GetAppError extracts an AppError from an error chain, or nil
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries the given application error code
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
