package ledger

import "errors"

// Entry errors
var (
	ErrInvalidEntryID       = errors.New("entry id is required")
	ErrInvalidEntryType     = errors.New("invalid entry type")
	ErrEntryBalanceMismatch = errors.New("balance_after does not equal balance_before plus amount")
	ErrDuplicateEntry       = errors.New("ledger entry with this id already exists")
)

// Transfer errors
var (
	ErrAmountNotPositive  = errors.New("amount must be positive")
	ErrAmountBelowMinimum = errors.New("minimum transfer amount is 1000.00")
)

// Cache errors
var (
	// ErrCASConflict means the cached balances changed between read and
	// commit. Recoverable; absorbed by the transfer retry loop.
	ErrCASConflict = errors.New("cached balance changed during transaction")
)

// Request lifecycle errors
var (
	ErrRequestNotWaiting  = errors.New("credit request not found or already processed")
	ErrChargeSaleNotFound = errors.New("charge sale not found")
)
