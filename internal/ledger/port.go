package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for durable ledger persistence.
// Writes that belong to one logical commit run inside a single database
// transaction scoped via BeginTx/CommitTx/RollbackTx on the context.
type Repository interface {
	// Entry operations (append-only; entries are immutable)
	InsertEntry(ctx context.Context, e *Entry) error
	ListEntriesByReference(ctx context.Context, referenceID string) ([]*Entry, error)
	ListEntriesByAccount(ctx context.Context, accountID int64) ([]*Entry, error)

	// Wallet balance operations
	UpdateWalletBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	SumEntryAmounts(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// Credit request lifecycle
	CreateCreditRequest(ctx context.Context, cr *CreditRequest) error
	GetCreditRequest(ctx context.Context, id int64) (*CreditRequest, error)
	// TransitionCreditRequest moves a request from WAITING to a terminal
	// status, stamping the admin. ErrRequestNotWaiting when the precondition
	// fails; this enforces the single-winner rule for concurrent processors.
	TransitionCreditRequest(ctx context.Context, id int64, to CreditRequestStatus, adminID int64) (*CreditRequest, error)

	// Charge sale lifecycle
	CreateChargeSale(ctx context.Context, cs *ChargeSale) error
	GetChargeSale(ctx context.Context, id uuid.UUID) (*ChargeSale, error)
	UpdateChargeSale(ctx context.Context, id uuid.UUID, status ChargeSaleStatus, transactionID *uuid.UUID) error

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// BalanceSwap is one wallet's expected and new cached balance within a CAS.
type BalanceSwap struct {
	AccountID int64
	Expected  decimal.Decimal
	New       decimal.Decimal
}

// EntryAppend is a serialized entry to append to an account's cached log.
type EntryAppend struct {
	AccountID int64
	Payload   []byte
}

// BalanceCache defines the fast shared-store balance layer.
type BalanceCache interface {
	// ReadBalance returns the cached balance; an absent key reads as 0.00.
	ReadBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// CompareAndSwap atomically verifies every swap's expected balance, then
	// writes all new balances and appends the entry payloads. Linearizable
	// across concurrent callers; ErrCASConflict when any expectation fails or
	// a watched key is written concurrently.
	CompareAndSwap(ctx context.Context, swaps []BalanceSwap, appends []EntryAppend) error

	// HardSet unconditionally rewrites a cached balance. Compensation only.
	HardSet(ctx context.Context, accountID int64, balance decimal.Decimal) error

	// RemoveEntry removes one occurrence of the payload from the account's
	// cached log. Compensation only.
	RemoveEntry(ctx context.Context, accountID int64, payload []byte) error
}

// PairLocker serializes access to a pair of wallets. Implementations must
// take both layers (process-local and shared lease) in sorted-id order and
// guarantee release on every exit path.
type PairLocker interface {
	// LockPair acquires both locks and returns the release function.
	LockPair(ctx context.Context, a, b int64) (release func(), err error)
}
