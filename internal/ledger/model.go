package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/chargehub/pkg/money"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryCreditIncrease EntryType = "CREDIT_INCREASE"
	EntryChargeSale     EntryType = "CHARGE_SALE"
	EntryRefund         EntryType = "REFUND"
)

// IsValid checks if the entry type is valid
func (t EntryType) IsValid() bool {
	switch t {
	case EntryCreditIncrease, EntryChargeSale, EntryRefund:
		return true
	}
	return false
}

// Entry is an immutable record of a single wallet's balance change.
// Amount is signed: negative for debits, positive for credits.
type Entry struct {
	ID            uuid.UUID
	AccountID     int64
	Type          EntryType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   string // id of the originating ChargeSale or CreditRequest
	Description   string
	AdminID       *int64 // administrator that authorized the movement
	CreatedAt     time.Time
}

// Validate validates the entry
func (e *Entry) Validate() error {
	if e.ID == uuid.Nil {
		return ErrInvalidEntryID
	}
	if !e.Type.IsValid() {
		return ErrInvalidEntryType
	}
	if err := money.Validate(e.Amount); err != nil {
		return fmt.Errorf("entry amount: %w", err)
	}
	if !e.BalanceBefore.Add(e.Amount).Equal(e.BalanceAfter) {
		return ErrEntryBalanceMismatch
	}
	return nil
}

// cachePayload is the wire form of an entry in the per-account Redis list.
// Field order and canonical decimal strings keep the serialization
// deterministic so compensation can LREM the exact payload it appended.
type cachePayload struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	ReferenceID   string `json:"reference_id"`
	Description   string `json:"description"`
	Timestamp     int64  `json:"timestamp"`
}

// MarshalCache renders the entry as the deterministic JSON payload stored in
// the cache's per-account transaction list.
func (e *Entry) MarshalCache() ([]byte, error) {
	return json.Marshal(cachePayload{
		ID:            e.ID.String(),
		Amount:        money.Canonical(e.Amount),
		BalanceBefore: money.Canonical(e.BalanceBefore),
		BalanceAfter:  money.Canonical(e.BalanceAfter),
		ReferenceID:   e.ReferenceID,
		Description:   e.Description,
		Timestamp:     e.CreatedAt.Unix(),
	})
}

// CreditRequestStatus is the lifecycle state of a credit request.
type CreditRequestStatus string

const (
	CreditRequestWaiting  CreditRequestStatus = "WAITING"
	CreditRequestAccepted CreditRequestStatus = "ACCEPTED"
	CreditRequestRejected CreditRequestStatus = "REJECTED"
	CreditRequestFailed   CreditRequestStatus = "FAILED"
)

// IsTerminal reports whether the status allows no further transitions.
func (s CreditRequestStatus) IsTerminal() bool {
	switch s {
	case CreditRequestAccepted, CreditRequestRejected, CreditRequestFailed:
		return true
	}
	return false
}

// CreditRequest is a seller's request for the admin to transfer credit.
// Lifecycle: created WAITING; exactly one terminal transition to ACCEPTED,
// REJECTED, or FAILED. No reopening.
type CreditRequest struct {
	ID        int64
	AccountID int64 // requesting seller
	Amount    decimal.Decimal
	Status    CreditRequestStatus
	AdminID   *int64 // null until processed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReferenceID returns the reference id stamped on ledger entries for this
// request.
func (cr *CreditRequest) ReferenceID() string {
	return fmt.Sprintf("%d", cr.ID)
}

// ChargeSaleStatus is the lifecycle state of a charge sale.
type ChargeSaleStatus string

const (
	ChargeSalePending   ChargeSaleStatus = "PENDING"
	ChargeSaleCompleted ChargeSaleStatus = "COMPLETED"
	ChargeSaleFailed    ChargeSaleStatus = "FAILED"
	ChargeSaleRefunded  ChargeSaleStatus = "REFUNDED"
)

// ChargeSale is a seller-initiated transfer to a target phone number.
type ChargeSale struct {
	ID            uuid.UUID
	SellerID      int64
	PhoneNumber   string // target
	Amount        decimal.Decimal
	Status        ChargeSaleStatus
	TransactionID *uuid.UUID // seller-side ledger entry, set on completion
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateTransferAmount applies the shared amount preconditions: positive
// and at or above the 1000.00 minimum.
func ValidateTransferAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if amount.LessThan(money.MinTransfer) {
		return ErrAmountBelowMinimum
	}
	return money.Validate(amount)
}
