package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		phone string
		ok    bool
	}{
		{"09123456789", true},
		{"08994562531", true},
		{"0912345678", false},   // 10 digits
		{"091234567890", false}, // 12 digits
		{"0912345678a", false},
		{"", false},
		{"+9123456789", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			err := ValidatePhone(tt.phone)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPhone)
			}
		})
	}
}

func TestAccount_Validate(t *testing.T) {
	a := &Account{PhoneNumber: "09123456789", Role: RoleSeller}
	assert.NoError(t, a.Validate())

	a.Role = "MANAGER"
	assert.ErrorIs(t, a.Validate(), ErrInvalidRole)
}

func TestAccount_PasswordRoundTrip(t *testing.T) {
	a := &Account{PhoneNumber: "09123456789", Role: RoleSeller}

	require.ErrorIs(t, a.SetPassword("short"), ErrPasswordTooShort)

	require.NoError(t, a.SetPassword("correct-horse"))
	assert.NoError(t, a.CheckPassword("correct-horse"))
	assert.ErrorIs(t, a.CheckPassword("wrong-horse"), ErrInvalidPassword)
}

func TestAccount_EmptyHashNeverAuthenticates(t *testing.T) {
	// Auto-provisioned charge-sale targets have no credential.
	a := &Account{PhoneNumber: "09123456789", Role: RoleUser}
	assert.ErrorIs(t, a.CheckPassword(""), ErrInvalidPassword)
	assert.ErrorIs(t, a.CheckPassword("anything"), ErrInvalidPassword)
}

func TestWallet_IsActive(t *testing.T) {
	w := &Wallet{Status: WalletActive}
	assert.True(t, w.IsActive())

	w.Status = WalletSuspend
	assert.False(t, w.IsActive())

	w.Status = WalletDeactive
	assert.False(t, w.IsActive())
}
