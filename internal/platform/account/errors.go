package account

import "errors"

var (
	// Validation errors
	ErrInvalidPhone     = errors.New("phone number must be exactly 11 digits")
	ErrInvalidRole      = errors.New("invalid account role")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrInvalidPassword  = errors.New("invalid phone number or password")

	// Repository errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account with this phone number already exists")
	ErrWalletNotFound  = errors.New("wallet not found")
)
