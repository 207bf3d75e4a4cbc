package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/chargehub/internal/lock"
	"github.com/kislikjeka/chargehub/internal/platform/account"
	apperrors "github.com/kislikjeka/chargehub/internal/shared/errors"
	"github.com/kislikjeka/chargehub/pkg/logger"
	"github.com/kislikjeka/chargehub/pkg/money"
)

// DefaultCASRetries is how many optimistic commit attempts a transfer gets
// before it is declared lost to contention.
const DefaultCASRetries = 3

// casBackoffUnit is multiplied by the attempt number between CAS retries.
const casBackoffUnit = 100 * time.Millisecond

// Service is the transfer engine. Every balance movement funnels through
// executeTransfer, which holds the wallet pair lock for the full
// cache-commit-durable-commit sequence.
type Service struct {
	repo       Repository
	cache      BalanceCache
	locker     PairLocker
	accounts   *account.Service
	pool       *Pool
	logger     *logger.Logger
	casRetries int
}

// NewService creates a new transfer service.
func NewService(
	repo Repository,
	cache BalanceCache,
	locker PairLocker,
	accounts *account.Service,
	pool *Pool,
	log *logger.Logger,
	casRetries int,
) *Service {
	if casRetries <= 0 {
		casRetries = DefaultCASRetries
	}
	return &Service{
		repo:       repo,
		cache:      cache,
		locker:     locker,
		accounts:   accounts,
		pool:       pool,
		logger:     log.WithField("component", "transfer"),
		casRetries: casRetries,
	}
}

// transfer describes one atomic movement from a source wallet to a
// destination wallet, plus the originating record's commit and failure
// transitions.
type transfer struct {
	sourceID    int64
	destID      int64
	amount      decimal.Decimal
	entryType   EntryType
	referenceID string
	sourceDesc  string
	destDesc    string
	adminID     *int64

	// recheck runs inside the pair lock before any balance movement. It
	// re-reads the originating record so that of N racing processors only
	// the first past this gate proceeds.
	recheck func(ctx context.Context) error

	// commit runs inside the durable transaction after entries and balances
	// are written. It transitions the originating record.
	commit func(txCtx context.Context, sourceEntry *Entry) error

	// fail marks the originating record FAILED. Best effort, detached
	// context. Nil when the caller handles failure itself.
	fail func(ctx context.Context)
}

// Intake operations

// CreateCreditRequest records a seller's request for credit. No wallet is
// touched; the request waits for an administrator.
func (s *Service) CreateCreditRequest(ctx context.Context, accountID int64, amount decimal.Decimal) (*CreditRequest, error) {
	if err := ValidateTransferAmount(amount); err != nil {
		return nil, apperrors.InvalidAmount(err.Error())
	}

	now := time.Now()
	cr := &CreditRequest{
		AccountID: accountID,
		Amount:    amount,
		Status:    CreditRequestWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCreditRequest(ctx, cr); err != nil {
		return nil, apperrors.Internal("failed to create credit request", err)
	}

	s.logger.Info("credit request created", "request_id", cr.ID, "account_id", accountID, "amount", money.Canonical(amount))
	return cr, nil
}

// RejectCreditRequest moves a WAITING request to REJECTED with the admin
// stamp. Writes no ledger entries and touches no balances.
func (s *Service) RejectCreditRequest(ctx context.Context, requestID, adminID int64) (*CreditRequest, error) {
	cr, err := s.repo.TransitionCreditRequest(ctx, requestID, CreditRequestRejected, adminID)
	if err != nil {
		if errors.Is(err, ErrRequestNotWaiting) {
			return nil, apperrors.RequestMissing(fmt.Sprintf("credit request %d not found or already processed", requestID))
		}
		return nil, apperrors.Internal("failed to reject credit request", err)
	}

	s.logger.Info("credit request rejected", "request_id", requestID, "admin_id", adminID)
	return cr, nil
}

// ApproveCreditRequest transfers the requested amount from the admin's
// wallet to the requester's. Blocks until a pool worker completes or
// compensates the transfer.
func (s *Service) ApproveCreditRequest(ctx context.Context, requestID, adminID int64) (*CreditRequest, error) {
	cr, err := s.repo.GetCreditRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotWaiting) {
			return nil, apperrors.RequestMissing(fmt.Sprintf("credit request %d not found", requestID))
		}
		return nil, apperrors.Internal("failed to get credit request", err)
	}
	if cr.Status != CreditRequestWaiting {
		return nil, apperrors.RequestMissing(fmt.Sprintf("credit request %d already %s", requestID, cr.Status))
	}
	if err := ValidateTransferAmount(cr.Amount); err != nil {
		return nil, apperrors.InvalidAmount(err.Error())
	}

	if err := s.ensureActiveWallet(ctx, adminID); err != nil {
		return nil, err
	}
	if err := s.ensureActiveWallet(ctx, cr.AccountID); err != nil {
		return nil, err
	}

	t := &transfer{
		sourceID:    adminID,
		destID:      cr.AccountID,
		amount:      cr.Amount,
		entryType:   EntryCreditIncrease,
		referenceID: cr.ReferenceID(),
		sourceDesc:  fmt.Sprintf("credit approval for request %d", cr.ID),
		destDesc:    fmt.Sprintf("credit received for request %d", cr.ID),
		adminID:     &adminID,
		recheck: func(ctx context.Context) error {
			current, err := s.repo.GetCreditRequest(ctx, requestID)
			if err != nil {
				return apperrors.Internal("failed to re-read credit request", err)
			}
			if current.Status != CreditRequestWaiting {
				return apperrors.RequestMissing(fmt.Sprintf("credit request %d already %s", requestID, current.Status))
			}
			return nil
		},
		commit: func(txCtx context.Context, _ *Entry) error {
			_, err := s.repo.TransitionCreditRequest(txCtx, requestID, CreditRequestAccepted, adminID)
			return err
		},
		fail: func(ctx context.Context) {
			if _, err := s.repo.TransitionCreditRequest(ctx, requestID, CreditRequestFailed, adminID); err != nil {
				s.logger.Error("failed to mark credit request FAILED", "request_id", requestID, "error", err)
			}
		},
	}

	err = s.pool.Submit(ctx, func() error {
		return s.executeTransfer(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	cr, getErr := s.repo.GetCreditRequest(ctx, requestID)
	if getErr != nil {
		return nil, apperrors.Internal("failed to re-read credit request", getErr)
	}
	return cr, nil
}

// CreateChargeSale transfers credit from the seller to the target phone
// number, provisioning the target account and wallet when absent. Blocks
// until a pool worker completes or compensates the transfer.
func (s *Service) CreateChargeSale(ctx context.Context, sellerID int64, targetPhone string, amount decimal.Decimal) (*ChargeSale, error) {
	if err := ValidateTransferAmount(amount); err != nil {
		return nil, apperrors.InvalidAmount(err.Error())
	}

	if err := s.ensureActiveWallet(ctx, sellerID); err != nil {
		return nil, err
	}

	target, err := s.accounts.EnsureAccount(ctx, targetPhone, account.RoleUser)
	if err != nil {
		if errors.Is(err, account.ErrInvalidPhone) {
			return nil, apperrors.InvalidInput(err.Error())
		}
		return nil, apperrors.Internal("failed to provision target account", err)
	}
	if err := s.ensureActiveWallet(ctx, target.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	cs := &ChargeSale{
		ID:          uuid.New(),
		SellerID:    sellerID,
		PhoneNumber: targetPhone,
		Amount:      amount,
		Status:      ChargeSalePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateChargeSale(ctx, cs); err != nil {
		return nil, apperrors.Internal("failed to create charge sale", err)
	}

	t := &transfer{
		sourceID:    sellerID,
		destID:      target.ID,
		amount:      amount,
		entryType:   EntryChargeSale,
		referenceID: cs.ID.String(),
		sourceDesc:  fmt.Sprintf("charge sale to %s", targetPhone),
		destDesc:    "charge received",
		commit: func(txCtx context.Context, sourceEntry *Entry) error {
			return s.repo.UpdateChargeSale(txCtx, cs.ID, ChargeSaleCompleted, &sourceEntry.ID)
		},
	}

	err = s.pool.Submit(ctx, func() error {
		return s.executeTransfer(ctx, t)
	})
	if err != nil {
		s.markChargeSaleFailed(cs.ID)
		return nil, err
	}

	cs.Status = ChargeSaleCompleted
	return cs, nil
}

// Reads

// Balance returns the account's fast-layer balance.
func (s *Service) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.cache.ReadBalance(ctx, accountID)
}

// ListEntries returns the account's durable ledger history.
func (s *Service) ListEntries(ctx context.Context, accountID int64) ([]*Entry, error) {
	return s.repo.ListEntriesByAccount(ctx, accountID)
}

// ReconcileWallet recomputes the durable balance from the entry history and
// rewrites both the durable and cached values. Manual repair tool; holds the
// wallet lock so no transfer runs concurrently.
func (s *Service) ReconcileWallet(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	release, err := s.locker.LockPair(ctx, accountID, accountID)
	if err != nil {
		return money.Zero, apperrors.LockBusy(fmt.Sprintf("wallet %d is busy", accountID))
	}
	defer release()

	sum, err := s.repo.SumEntryAmounts(ctx, accountID)
	if err != nil {
		return money.Zero, apperrors.Internal("failed to sum ledger entries", err)
	}
	if err := s.repo.UpdateWalletBalance(ctx, accountID, sum); err != nil {
		return money.Zero, apperrors.Internal("failed to write reconciled balance", err)
	}
	if err := s.cache.HardSet(ctx, accountID, sum); err != nil {
		return money.Zero, apperrors.Internal("failed to rewrite cached balance", err)
	}

	s.logger.Info("wallet reconciled", "account_id", accountID, "balance", money.Canonical(sum))
	return sum, nil
}

// Transfer core

// executeTransfer runs the locked cache-then-durable commit sequence for
// one transfer. The pair lock is held across the whole sequence so the
// cache and the durable store can never be observed moving independently
// for these wallets.
func (s *Service) executeTransfer(ctx context.Context, t *transfer) error {
	release, err := s.locker.LockPair(ctx, t.sourceID, t.destID)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			// Contention is transient; the record is left untouched so the
			// caller can retry.
			return apperrors.LockBusy(fmt.Sprintf("wallets %d and %d are busy", t.sourceID, t.destID))
		}
		return apperrors.Internal("failed to lock wallet pair", err)
	}
	defer release()

	if t.recheck != nil {
		if err := t.recheck(ctx); err != nil {
			return err
		}
	}

	for attempt := 1; attempt <= s.casRetries; attempt++ {
		err := s.attemptTransfer(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCASConflict) {
			return err
		}

		s.logger.Warn("balance changed during commit, retrying",
			"source_id", t.sourceID, "dest_id", t.destID, "attempt", attempt)
		if attempt < s.casRetries {
			select {
			case <-time.After(time.Duration(attempt) * casBackoffUnit):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	s.failRecord(t)
	return apperrors.Concurrency(fmt.Sprintf("transfer between %d and %d lost to contention after %d attempts", t.sourceID, t.destID, s.casRetries))
}

// attemptTransfer makes one optimistic commit attempt: read cached
// balances, CAS the new values plus entry payloads, then persist durably.
// ErrCASConflict is the only retryable outcome.
func (s *Service) attemptTransfer(ctx context.Context, t *transfer) error {
	sourceBalance, err := s.cache.ReadBalance(ctx, t.sourceID)
	if err != nil {
		return apperrors.Internal("failed to read source balance", err)
	}

	if sourceBalance.LessThan(t.amount) {
		s.failRecord(t)
		return apperrors.InsufficientBalance(fmt.Sprintf("balance %s is below amount %s",
			money.Canonical(sourceBalance), money.Canonical(t.amount)))
	}

	now := time.Now()

	// S == D degenerates to a single zero-amount entry against an unchanged
	// balance, so the record still reaches its terminal state through the
	// normal commit path. The gate above still applies: the wallet must cover
	// the amount even though no money moves.
	if t.sourceID == t.destID {
		entry := &Entry{
			ID:            uuid.New(),
			AccountID:     t.sourceID,
			Type:          t.entryType,
			Amount:        money.Zero,
			BalanceBefore: sourceBalance,
			BalanceAfter:  sourceBalance,
			ReferenceID:   t.referenceID,
			Description:   t.sourceDesc,
			AdminID:       t.adminID,
			CreatedAt:     now,
		}
		payload, err := entry.MarshalCache()
		if err != nil {
			return apperrors.Internal("failed to serialize entry", err)
		}

		swaps := []BalanceSwap{{AccountID: t.sourceID, Expected: sourceBalance, New: sourceBalance}}
		appends := []EntryAppend{{AccountID: t.sourceID, Payload: payload}}
		if err := s.cache.CompareAndSwap(ctx, swaps, appends); err != nil {
			return err
		}

		return s.commitDurable(ctx, t,
			[]*Entry{entry},
			map[int64]decimal.Decimal{t.sourceID: sourceBalance},
			map[int64]decimal.Decimal{t.sourceID: sourceBalance},
			appends,
			entry,
		)
	}

	destBalance, err := s.cache.ReadBalance(ctx, t.destID)
	if err != nil {
		return apperrors.Internal("failed to read destination balance", err)
	}

	sourceAfter := sourceBalance.Sub(t.amount)
	destAfter := destBalance.Add(t.amount)

	sourceEntry := &Entry{
		ID:            uuid.New(),
		AccountID:     t.sourceID,
		Type:          t.entryType,
		Amount:        t.amount.Neg(),
		BalanceBefore: sourceBalance,
		BalanceAfter:  sourceAfter,
		ReferenceID:   t.referenceID,
		Description:   t.sourceDesc,
		AdminID:       t.adminID,
		CreatedAt:     now,
	}
	destEntry := &Entry{
		ID:            uuid.New(),
		AccountID:     t.destID,
		Type:          t.entryType,
		Amount:        t.amount,
		BalanceBefore: destBalance,
		BalanceAfter:  destAfter,
		ReferenceID:   t.referenceID,
		Description:   t.destDesc,
		AdminID:       t.adminID,
		CreatedAt:     now,
	}

	sourcePayload, err := sourceEntry.MarshalCache()
	if err != nil {
		return apperrors.Internal("failed to serialize source entry", err)
	}
	destPayload, err := destEntry.MarshalCache()
	if err != nil {
		return apperrors.Internal("failed to serialize destination entry", err)
	}

	swaps := []BalanceSwap{
		{AccountID: t.sourceID, Expected: sourceBalance, New: sourceAfter},
		{AccountID: t.destID, Expected: destBalance, New: destAfter},
	}
	appends := []EntryAppend{
		{AccountID: t.sourceID, Payload: sourcePayload},
		{AccountID: t.destID, Payload: destPayload},
	}

	if err := s.cache.CompareAndSwap(ctx, swaps, appends); err != nil {
		return err
	}

	return s.commitDurable(ctx, t,
		[]*Entry{sourceEntry, destEntry},
		map[int64]decimal.Decimal{t.sourceID: sourceBalance, t.destID: destBalance},
		map[int64]decimal.Decimal{t.sourceID: sourceAfter, t.destID: destAfter},
		appends,
		sourceEntry,
	)
}

// commitDurable persists the already-CAS'd movement in one database
// transaction. Any failure here compensates the cache before surfacing.
func (s *Service) commitDurable(
	ctx context.Context,
	t *transfer,
	entries []*Entry,
	originals map[int64]decimal.Decimal,
	finals map[int64]decimal.Decimal,
	appends []EntryAppend,
	sourceEntry *Entry,
) error {
	commitErr := func() error {
		txCtx, err := s.repo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin commit transaction: %w", err)
		}
		defer func() {
			if err := s.repo.RollbackTx(txCtx); err != nil {
				s.logger.Error("failed to rollback commit transaction", "error", err)
			}
		}()

		for _, e := range entries {
			if err := s.repo.InsertEntry(txCtx, e); err != nil {
				return fmt.Errorf("failed to persist entry: %w", err)
			}
		}
		for accountID, balance := range finals {
			if err := s.repo.UpdateWalletBalance(txCtx, accountID, balance); err != nil {
				return fmt.Errorf("failed to persist balance: %w", err)
			}
		}
		if err := t.commit(txCtx, sourceEntry); err != nil {
			return fmt.Errorf("failed to transition record: %w", err)
		}

		return s.repo.CommitTx(txCtx)
	}()

	if commitErr == nil {
		s.logger.Info("transfer committed",
			"source_id", t.sourceID, "dest_id", t.destID,
			"amount", money.Canonical(t.amount), "reference_id", t.referenceID)
		return nil
	}

	s.logger.Error("durable commit failed, compensating cache",
		"source_id", t.sourceID, "dest_id", t.destID, "error", commitErr)
	s.compensate(originals, appends)
	s.failRecord(t)
	return apperrors.TransferFailed(commitErr)
}

// compensate rewinds the cache after a failed durable commit: restore every
// balance to its pre-CAS value and remove the appended entry payloads. Runs
// under the still-held pair lock on a detached context.
func (s *Service) compensate(originals map[int64]decimal.Decimal, appends []EntryAppend) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for accountID, balance := range originals {
		if err := s.cache.HardSet(ctx, accountID, balance); err != nil {
			s.logger.Error("compensation failed to restore balance", "account_id", accountID, "error", err)
		}
	}
	for _, a := range appends {
		if err := s.cache.RemoveEntry(ctx, a.AccountID, a.Payload); err != nil {
			s.logger.Error("compensation failed to remove entry", "account_id", a.AccountID, "error", err)
		}
	}
}

// failRecord marks the originating record FAILED, best effort.
func (s *Service) failRecord(t *transfer) {
	if t.fail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	t.fail(ctx)
}

func (s *Service) markChargeSaleFailed(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.UpdateChargeSale(ctx, id, ChargeSaleFailed, nil); err != nil {
		s.logger.Error("failed to mark charge sale FAILED", "charge_sale_id", id, "error", err)
	}
}

// ensureActiveWallet provisions the wallet when absent and verifies it can
// move money.
func (s *Service) ensureActiveWallet(ctx context.Context, accountID int64) error {
	w, err := s.accounts.EnsureWallet(ctx, accountID)
	if err != nil {
		return apperrors.Internal("failed to ensure wallet", err)
	}
	if !w.IsActive() {
		return apperrors.WalletInactive(fmt.Sprintf("wallet for account %d is %s", accountID, w.Status))
	}
	return nil
}
