package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntry() *Entry {
	return &Entry{
		ID:            uuid.New(),
		AccountID:     1,
		Type:          EntryCreditIncrease,
		Amount:        decimal.RequireFromString("1000.00"),
		BalanceBefore: decimal.RequireFromString("500.00"),
		BalanceAfter:  decimal.RequireFromString("1500.00"),
		ReferenceID:   "42",
		CreatedAt:     time.Now(),
	}
}

func TestEntry_Validate(t *testing.T) {
	t.Run("valid entry", func(t *testing.T) {
		assert.NoError(t, validEntry().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		e := validEntry()
		e.ID = uuid.Nil
		assert.ErrorIs(t, e.Validate(), ErrInvalidEntryID)
	})

	t.Run("unknown type", func(t *testing.T) {
		e := validEntry()
		e.Type = "WITHDRAWAL"
		assert.ErrorIs(t, e.Validate(), ErrInvalidEntryType)
	})

	t.Run("balance mismatch", func(t *testing.T) {
		e := validEntry()
		e.BalanceAfter = decimal.RequireFromString("1500.01")
		assert.ErrorIs(t, e.Validate(), ErrEntryBalanceMismatch)
	})

	t.Run("negative amount balances", func(t *testing.T) {
		e := validEntry()
		e.Amount = decimal.RequireFromString("-1000.00")
		e.BalanceBefore = decimal.RequireFromString("5000.00")
		e.BalanceAfter = decimal.RequireFromString("4000.00")
		assert.NoError(t, e.Validate())
	})
}

func TestEntry_MarshalCache_Deterministic(t *testing.T) {
	e := validEntry()

	first, err := e.MarshalCache()
	require.NoError(t, err)
	second, err := e.MarshalCache()
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeated serialization must be byte-identical for LREM")

	expected := fmt.Sprintf(
		`{"id":%q,"amount":"1000.00","balance_before":"500.00","balance_after":"1500.00","reference_id":"42","description":"","timestamp":%d}`,
		e.ID, e.CreatedAt.Unix(),
	)
	assert.JSONEq(t, expected, string(first))
}

func TestCreditRequestStatus_IsTerminal(t *testing.T) {
	assert.False(t, CreditRequestWaiting.IsTerminal())
	assert.True(t, CreditRequestAccepted.IsTerminal())
	assert.True(t, CreditRequestRejected.IsTerminal())
	assert.True(t, CreditRequestFailed.IsTerminal())
}

func TestCreditRequest_ReferenceID(t *testing.T) {
	cr := &CreditRequest{ID: 42}
	assert.Equal(t, "42", cr.ReferenceID())
}

func TestValidateTransferAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr error
	}{
		{"1000.00", nil},
		{"30000.00", nil},
		{"999.99", ErrAmountBelowMinimum},
		{"500.00", ErrAmountBelowMinimum},
		{"0.00", ErrAmountNotPositive},
		{"-1000.00", ErrAmountNotPositive},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := ValidateTransferAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
