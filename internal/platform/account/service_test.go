package account

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateAccount(ctx context.Context, a *Account) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockRepository) GetByPhone(ctx context.Context, phone string) (*Account, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Account), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id int64) (*Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Account), args.Error(1)
}

func (m *MockRepository) GetOrCreateAccount(ctx context.Context, a *Account) (*Account, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Account), args.Error(1)
}

func (m *MockRepository) GetOrCreateWallet(ctx context.Context, accountID int64) (*Wallet, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) GetWallet(ctx context.Context, accountID int64) (*Wallet, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

// MockSeeder is a mock implementation of BalanceSeeder
type MockSeeder struct {
	mock.Mock
}

func (m *MockSeeder) SeedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	args := m.Called(ctx, accountID, balance)
	return args.Error(0)
}

func TestRegister_Success(t *testing.T) {
	repo := new(MockRepository)
	seeder := new(MockSeeder)
	svc := NewService(repo, seeder)

	repo.On("CreateAccount", mock.Anything, mock.MatchedBy(func(a *Account) bool {
		return a.PhoneNumber == "09123456789" && a.Role == RoleSeller && a.PasswordHash != ""
	})).Return(nil)

	a, err := svc.Register(context.Background(), "09123456789", "password123", RoleSeller)
	require.NoError(t, err)
	assert.NoError(t, a.CheckPassword("password123"))
	repo.AssertExpectations(t)
}

func TestRegister_ShortPassword(t *testing.T) {
	svc := NewService(new(MockRepository), new(MockSeeder))

	_, err := svc.Register(context.Background(), "09123456789", "short", RoleSeller)
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestAuthenticate_UnknownAccountLooksLikeBadPassword(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockSeeder))

	repo.On("GetByPhone", mock.Anything, "09123456789").Return(nil, ErrAccountNotFound)

	_, err := svc.Authenticate(context.Background(), "09123456789", "password123")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestEnsureAccount_InvalidPhoneRejectedBeforeRepo(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockSeeder))

	_, err := svc.EnsureAccount(context.Background(), "12345", RoleUser)
	assert.ErrorIs(t, err, ErrInvalidPhone)
	repo.AssertNotCalled(t, "GetOrCreateAccount")
}

func TestEnsureAccount_ReturnsExisting(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockSeeder))

	existing := &Account{ID: 4, PhoneNumber: "09123456789", Role: RoleSeller}
	repo.On("GetOrCreateAccount", mock.Anything, mock.MatchedBy(func(a *Account) bool {
		return a.PhoneNumber == "09123456789" && a.Role == RoleUser
	})).Return(existing, nil)

	a, err := svc.EnsureAccount(context.Background(), "09123456789", RoleUser)
	require.NoError(t, err)

	// The existing row wins over the candidate's default role.
	assert.Equal(t, int64(4), a.ID)
	assert.Equal(t, RoleSeller, a.Role)
}

func TestEnsureWallet_SeedsCacheFromDurableBalance(t *testing.T) {
	repo := new(MockRepository)
	seeder := new(MockSeeder)
	svc := NewService(repo, seeder)

	w := &Wallet{ID: 1, AccountID: 4, Balance: decimal.RequireFromString("250.00"), Status: WalletActive}
	repo.On("GetOrCreateWallet", mock.Anything, int64(4)).Return(w, nil)
	seeder.On("SeedBalance", mock.Anything, int64(4), mock.MatchedBy(func(b decimal.Decimal) bool {
		return b.Equal(decimal.RequireFromString("250.00"))
	})).Return(nil)

	got, err := svc.EnsureWallet(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, w, got)
	seeder.AssertExpectations(t)
}
