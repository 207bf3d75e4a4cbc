package account

import (
	"context"
	"fmt"
	"time"
)

// Service handles identity and wallet-registry logic
type Service struct {
	repo   Repository
	seeder BalanceSeeder
}

// NewService creates a new account service
func NewService(repo Repository, seeder BalanceSeeder) *Service {
	return &Service{
		repo:   repo,
		seeder: seeder,
	}
}

// Register registers a new account with a password
func (s *Service) Register(ctx context.Context, phone, password string, role Role) (*Account, error) {
	a := &Account{
		PhoneNumber: phone,
		Role:        role,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := a.SetPassword(password); err != nil {
		return nil, err
	}

	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Authenticate verifies phone/password credentials
func (s *Service) Authenticate(ctx context.Context, phone, password string) (*Account, error) {
	a, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		if err == ErrAccountNotFound {
			// Don't reveal that the account doesn't exist
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := a.CheckPassword(password); err != nil {
		return nil, err
	}
	return a, nil
}

// LookupByPhone retrieves an account by phone number
func (s *Service) LookupByPhone(ctx context.Context, phone string) (*Account, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}
	return s.repo.GetByPhone(ctx, phone)
}

// EnsureAccount gets or creates an account for the phone number. Created
// accounts get the default role and no usable credential. Idempotent.
func (s *Service) EnsureAccount(ctx context.Context, phone string, defaultRole Role) (*Account, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}

	candidate := &Account{
		PhoneNumber: phone,
		Role:        defaultRole,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	a, err := s.repo.GetOrCreateAccount(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create account: %w", err)
	}
	return a, nil
}

// EnsureWallet gets or creates the wallet for an account and seeds the
// cached balance from the durable value on first observation only.
// Idempotent.
func (s *Service) EnsureWallet(ctx context.Context, accountID int64) (*Wallet, error) {
	w, err := s.repo.GetOrCreateWallet(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create wallet: %w", err)
	}

	if err := s.seeder.SeedBalance(ctx, accountID, w.Balance); err != nil {
		return nil, fmt.Errorf("failed to seed cached balance: %w", err)
	}
	return w, nil
}
