package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/chargehub/internal/platform/account"
	"github.com/kislikjeka/chargehub/pkg/money"
)

// AccountRepository implements the account repository interface using PostgreSQL
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// CreateAccount creates a new account in the database
func (r *AccountRepository) CreateAccount(ctx context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	query := `
		INSERT INTO accounts (phone_number, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		a.PhoneNumber,
		string(a.Role),
		a.PasswordHash,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByPhone retrieves an account by phone number
func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*account.Account, error) {
	query := `
		SELECT id, phone_number, role, password_hash, created_at, updated_at
		FROM accounts
		WHERE phone_number = $1
	`
	return r.scanAccount(r.pool.QueryRow(ctx, query, phone))
}

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `
		SELECT id, phone_number, role, password_hash, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetOrCreateAccount atomically inserts an account or returns the existing
// one by phone number. Uses INSERT...ON CONFLICT DO NOTHING so a concurrent
// creator never overwrites an existing row.
func (r *AccountRepository) GetOrCreateAccount(ctx context.Context, a *account.Account) (*account.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid account: %w", err)
	}

	insertQuery := `
		INSERT INTO accounts (phone_number, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone_number) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, insertQuery,
		a.PhoneNumber,
		string(a.Role),
		a.PasswordHash,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	// Always SELECT to get the canonical row (ours or existing)
	return r.GetByPhone(ctx, a.PhoneNumber)
}

// GetOrCreateWallet atomically inserts a zero-balance ACTIVE wallet for the
// account or returns the existing one.
func (r *AccountRepository) GetOrCreateWallet(ctx context.Context, accountID int64) (*account.Wallet, error) {
	insertQuery := `
		INSERT INTO wallets (account_id, balance, status, created_at, updated_at)
		VALUES ($1, 0.00, 'ACTIVE', now(), now())
		ON CONFLICT (account_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, insertQuery, accountID); err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}

	return r.GetWallet(ctx, accountID)
}

// GetWallet retrieves the wallet for an account
func (r *AccountRepository) GetWallet(ctx context.Context, accountID int64) (*account.Wallet, error) {
	query := `
		SELECT id, account_id, balance::text, status, created_at, updated_at
		FROM wallets
		WHERE account_id = $1
	`

	var w account.Wallet
	var balance string
	var status string

	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&w.ID,
		&w.AccountID,
		&balance,
		&status,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	w.Status = account.WalletStatus(status)
	w.Balance, err = money.Parse(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet balance: %w", err)
	}

	return &w, nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	var role string

	err := row.Scan(
		&a.ID,
		&a.PhoneNumber,
		&role,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	a.Role = account.Role(role)
	return &a, nil
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
