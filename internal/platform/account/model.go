package account

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Role classifies an account within the marketplace.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleSeller Role = "SELLER"
	RoleUser   Role = "USER"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSeller, RoleUser:
		return true
	}
	return false
}

// WalletStatus represents the operational state of a wallet.
type WalletStatus string

const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletDeactive WalletStatus = "DEACTIVE"
	WalletSuspend  WalletStatus = "SUSPEND"
)

// IsValid checks if the wallet status is valid
func (s WalletStatus) IsValid() bool {
	switch s {
	case WalletActive, WalletDeactive, WalletSuspend:
		return true
	}
	return false
}

// Account is an identity keyed by an 11-character phone number.
// Charge sales to unknown numbers auto-provision an account with role USER
// and an empty password hash; such accounts cannot authenticate.
type Account struct {
	ID           int64
	PhoneNumber  string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Wallet is one-to-one with an Account. Balance is a 15,2 fixed-point
// decimal and must never be negative.
type Wallet struct {
	ID        int64
	AccountID int64
	Balance   decimal.Decimal
	Status    WalletStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the wallet may participate in transfers.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletActive
}

var phonePattern = regexp.MustCompile(`^\d{11}$`)

// ValidatePhone checks the 11-digit phone number format
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// Validate validates the account
func (a *Account) Validate() error {
	if err := ValidatePhone(a.PhoneNumber); err != nil {
		return err
	}
	if !a.Role.IsValid() {
		return ErrInvalidRole
	}
	return nil
}

// SetPassword hashes and sets the account's password
func (a *Account) SetPassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword checks the provided password against the stored hash.
// Auto-provisioned accounts carry an empty hash and always fail here.
func (a *Account) CheckPassword(password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword || a.PasswordHash == "" {
			return ErrInvalidPassword
		}
		return fmt.Errorf("failed to check password: %w", err)
	}
	return nil
}
