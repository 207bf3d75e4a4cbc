package account

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for account and wallet persistence
type Repository interface {
	// CreateAccount creates a new account; ErrAccountExists on duplicate phone
	CreateAccount(ctx context.Context, a *Account) error

	// GetByPhone retrieves an account by phone number
	GetByPhone(ctx context.Context, phone string) (*Account, error)

	// GetByID retrieves an account by id
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetOrCreateAccount atomically inserts an account or returns the
	// existing one by phone number. Never overwrites an existing row.
	GetOrCreateAccount(ctx context.Context, a *Account) (*Account, error)

	// GetOrCreateWallet atomically inserts a zero-balance ACTIVE wallet for
	// the account or returns the existing one.
	GetOrCreateWallet(ctx context.Context, accountID int64) (*Wallet, error)

	// GetWallet retrieves the wallet for an account
	GetWallet(ctx context.Context, accountID int64) (*Wallet, error)
}

// BalanceSeeder seeds the cached balance from the durable value the first
// time a wallet is observed. Implemented by the Redis balance cache.
type BalanceSeeder interface {
	SeedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
}
