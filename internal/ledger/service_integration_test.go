//go:build integration

package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/chargehub/internal/infra/postgres"
	infraRedis "github.com/kislikjeka/chargehub/internal/infra/redis"
	"github.com/kislikjeka/chargehub/internal/ledger"
	"github.com/kislikjeka/chargehub/internal/lock"
	"github.com/kislikjeka/chargehub/internal/platform/account"
	apperrors "github.com/kislikjeka/chargehub/internal/shared/errors"
	"github.com/kislikjeka/chargehub/pkg/logger"
	"github.com/kislikjeka/chargehub/pkg/money"
	"github.com/kislikjeka/chargehub/testutil/testdb"
	"github.com/kislikjeka/chargehub/testutil/testredis"
)

type testEnv struct {
	db    *testdb.TestDB
	redis *testredis.TestRedis

	accountRepo *postgres.AccountRepository
	ledgerRepo  *postgres.LedgerRepository
	cache       *infraRedis.BalanceCache
	locker      *lock.Manager
	accounts    *account.Service
	transfers   *ledger.Service
	pool        *ledger.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := testdb.NewTestDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	rds, err := testredis.NewTestRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { rds.Close(context.Background()) })

	log := logger.NewDefault("development")

	cache := infraRedis.NewBalanceCache(rds.Client, log)
	leaser := infraRedis.NewLeaseClient(rds.Client)
	locker := lock.NewManager(leaser, lock.DefaultConfig(), log)

	accountRepo := postgres.NewAccountRepository(db.Pool)
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	accounts := account.NewService(accountRepo, cache)

	pool := ledger.NewPool(10)
	t.Cleanup(pool.Close)

	transfers := ledger.NewService(ledgerRepo, cache, locker, accounts, pool, log, 3)

	return &testEnv{
		db:          db,
		redis:       rds,
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		cache:       cache,
		locker:      locker,
		accounts:    accounts,
		transfers:   transfers,
		pool:        pool,
	}
}

// seedAccount provisions an account plus wallet and, when balance is
// positive, funds it through a seed ledger entry so balances stay
// reconstructible from history.
func (e *testEnv) seedAccount(t *testing.T, phone string, role account.Role, balance decimal.Decimal) *account.Account {
	t.Helper()
	ctx := context.Background()

	a, err := e.accounts.EnsureAccount(ctx, phone, role)
	require.NoError(t, err)

	_, err = e.accounts.EnsureWallet(ctx, a.ID)
	require.NoError(t, err)

	if balance.IsPositive() {
		entry := &ledger.Entry{
			ID:            uuid.New(),
			AccountID:     a.ID,
			Type:          ledger.EntryCreditIncrease,
			Amount:        balance,
			BalanceBefore: money.Zero,
			BalanceAfter:  balance,
			ReferenceID:   "seed",
			Description:   "initial funding",
			CreatedAt:     time.Now(),
		}
		require.NoError(t, e.ledgerRepo.InsertEntry(ctx, entry))
		require.NoError(t, e.ledgerRepo.UpdateWalletBalance(ctx, a.ID, balance))
		require.NoError(t, e.cache.HardSet(ctx, a.ID, balance))
	}

	return a
}

// assertConsistent checks that the cached balance, the durable balance, and
// the entry-history sum agree for the account.
func (e *testEnv) assertConsistent(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	ctx := context.Background()

	cached, err := e.cache.ReadBalance(ctx, accountID)
	require.NoError(t, err)

	w, err := e.accountRepo.GetWallet(ctx, accountID)
	require.NoError(t, err)

	sum, err := e.ledgerRepo.SumEntryAmounts(ctx, accountID)
	require.NoError(t, err)

	assert.True(t, cached.Equal(w.Balance),
		"cache %s != durable %s for account %d", money.Canonical(cached), money.Canonical(w.Balance), accountID)
	assert.True(t, w.Balance.Equal(sum),
		"durable %s != entry sum %s for account %d", money.Canonical(w.Balance), money.Canonical(sum), accountID)

	return w.Balance
}

func TestEngine_ConcurrentChargeSalesDrainExactly(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	const (
		workers        = 50
		salesPerWorker = 20
	)
	amount := decimal.RequireFromString("30000.00")
	total := amount.Mul(decimal.NewFromInt(workers * salesPerWorker))

	seller := e.seedAccount(t, "08994562531", account.RoleSeller, total)
	targets := []string{"09123456789", "09129129122"}

	var wg sync.WaitGroup
	errs := make(chan error, workers*salesPerWorker)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < salesPerWorker; j++ {
				target := targets[(n+j)%len(targets)]
				if _, err := e.transfers.CreateChargeSale(ctx, seller.ID, target, amount); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("charge sale failed: %v", err)
	}

	sellerBalance := e.assertConsistent(t, seller.ID)
	assert.True(t, sellerBalance.Equal(money.Zero), "seller should be fully drained, got %s", money.Canonical(sellerBalance))

	var received decimal.Decimal
	for _, phone := range targets {
		a, err := e.accounts.LookupByPhone(ctx, phone)
		require.NoError(t, err)
		received = received.Add(e.assertConsistent(t, a.ID))
	}
	assert.True(t, received.Equal(total), "targets should hold the full amount, got %s", money.Canonical(received))
}

func TestEngine_ApprovalRaceHasSingleWinner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	admin := e.seedAccount(t, "08994562531", account.RoleAdmin, decimal.RequireFromString("100000.00"))
	user := e.seedAccount(t, "09125129188", account.RoleUser, money.Zero)

	amount := decimal.RequireFromString("5000.00")
	cr, err := e.transfers.CreateCreditRequest(ctx, user.ID, amount)
	require.NoError(t, err)

	const racers = 5
	var wins, losses int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.transfers.ApproveCreditRequest(ctx, cr.ID, admin.ID)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if apperrors.HasCode(err, apperrors.ErrCodeRequestMissing) {
				losses++
			} else {
				t.Errorf("unexpected approval error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins, "exactly one approval must win")
	assert.Equal(t, int64(racers-1), losses)

	final, err := e.ledgerRepo.GetCreditRequest(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CreditRequestAccepted, final.Status)
	require.NotNil(t, final.AdminID)
	assert.Equal(t, admin.ID, *final.AdminID)

	// The amount moved exactly once.
	adminBalance := e.assertConsistent(t, admin.ID)
	userBalance := e.assertConsistent(t, user.ID)
	assert.True(t, adminBalance.Equal(decimal.RequireFromString("95000.00")))
	assert.True(t, userBalance.Equal(amount))

	entries, err := e.ledgerRepo.ListEntriesByReference(ctx, cr.ReferenceID())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEngine_RejectWritesNoEntries(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	admin := e.seedAccount(t, "08994562531", account.RoleAdmin, decimal.RequireFromString("100000.00"))
	user := e.seedAccount(t, "09125129188", account.RoleUser, money.Zero)

	cr, err := e.transfers.CreateCreditRequest(ctx, user.ID, decimal.RequireFromString("1500.00"))
	require.NoError(t, err)

	rejected, err := e.transfers.RejectCreditRequest(ctx, cr.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CreditRequestRejected, rejected.Status)

	entries, err := e.ledgerRepo.ListEntriesByReference(ctx, cr.ReferenceID())
	require.NoError(t, err)
	assert.Empty(t, entries)

	userBalance := e.assertConsistent(t, user.ID)
	assert.True(t, userBalance.Equal(money.Zero))

	// A terminal request cannot be approved afterwards.
	_, err = e.transfers.ApproveCreditRequest(ctx, cr.ID, admin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRequestMissing))
}

func TestEngine_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	seller := e.seedAccount(t, "09125550001", account.RoleSeller, decimal.RequireFromString("500.00"))

	_, err := e.transfers.CreateChargeSale(ctx, seller.ID, "09123456789", decimal.RequireFromString("1000.00"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance))

	balance := e.assertConsistent(t, seller.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("500.00")))

	entries, err := e.ledgerRepo.ListEntriesByAccount(ctx, seller.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the seed entry should exist")
}

func TestEngine_BelowMinimumRejectedBeforeAnyWork(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	seller := e.seedAccount(t, "09125550001", account.RoleSeller, decimal.RequireFromString("50000.00"))

	_, err := e.transfers.CreateChargeSale(ctx, seller.ID, "09123456789", decimal.RequireFromString("999.99"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidAmount))

	_, err = e.transfers.CreateCreditRequest(ctx, seller.ID, decimal.RequireFromString("500.00"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidAmount))
}

func TestEngine_TransferWaitsOutLockContention(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	seller := e.seedAccount(t, "09125550001", account.RoleSeller, decimal.RequireFromString("50000.00"))
	target := e.seedAccount(t, "09123456789", account.RoleUser, money.Zero)

	// Hold the pair for two seconds, well inside the retry budget.
	release, err := e.locker.LockPair(ctx, seller.ID, target.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		_, err := e.transfers.CreateChargeSale(ctx, seller.ID, target.PhoneNumber, decimal.RequireFromString("30000.00"))
		done <- err
	}()

	time.Sleep(2 * time.Second)
	release()

	select {
	case err := <-done:
		require.NoError(t, err, "transfer should succeed once the lock frees")
	case <-time.After(10 * time.Second):
		t.Fatal("transfer did not complete after lock release")
	}
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)

	sellerBalance := e.assertConsistent(t, seller.ID)
	assert.True(t, sellerBalance.Equal(decimal.RequireFromString("20000.00")))
}

func TestEngine_SelfApprovalWritesZeroAmountEntry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	admin := e.seedAccount(t, "08994562531", account.RoleAdmin, decimal.RequireFromString("30000000.00"))

	cr, err := e.transfers.CreateCreditRequest(ctx, admin.ID, decimal.RequireFromString("2000.00"))
	require.NoError(t, err)

	approved, err := e.transfers.ApproveCreditRequest(ctx, cr.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CreditRequestAccepted, approved.Status)

	balance := e.assertConsistent(t, admin.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("30000000.00")), "self-approval must not move money")

	entries, err := e.ledgerRepo.ListEntriesByReference(ctx, cr.ReferenceID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.IsZero())
	assert.Equal(t, ledger.EntryCreditIncrease, entries[0].Type)
}

func TestEngine_SelfApprovalRequiresCoveringBalance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	admin := e.seedAccount(t, "08994562531", account.RoleAdmin, decimal.RequireFromString("1500.00"))

	cr, err := e.transfers.CreateCreditRequest(ctx, admin.ID, decimal.RequireFromString("2000.00"))
	require.NoError(t, err)

	_, err = e.transfers.ApproveCreditRequest(ctx, cr.ID, admin.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance))

	final, err := e.ledgerRepo.GetCreditRequest(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CreditRequestFailed, final.Status)

	balance := e.assertConsistent(t, admin.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("1500.00")))

	entries, err := e.ledgerRepo.ListEntriesByReference(ctx, cr.ReferenceID())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_ChargeSaleProvisionsTarget(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	seller := e.seedAccount(t, "09125550001", account.RoleSeller, decimal.RequireFromString("50000.00"))

	cs, err := e.transfers.CreateChargeSale(ctx, seller.ID, "09120000042", decimal.RequireFromString("30000.00"))
	require.NoError(t, err)
	assert.Equal(t, ledger.ChargeSaleCompleted, cs.Status)

	target, err := e.accounts.LookupByPhone(ctx, "09120000042")
	require.NoError(t, err)
	assert.Equal(t, account.RoleUser, target.Role)
	assert.Empty(t, target.PasswordHash, "auto-provisioned accounts carry no credential")

	targetBalance := e.assertConsistent(t, target.ID)
	assert.True(t, targetBalance.Equal(decimal.RequireFromString("30000.00")))

	// The completed sale links the seller-side entry.
	stored, err := e.ledgerRepo.GetChargeSale(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ChargeSaleCompleted, stored.Status)
	require.NotNil(t, stored.TransactionID)

	entries, err := e.ledgerRepo.ListEntriesByReference(ctx, cs.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var sellerEntry *ledger.Entry
	for _, entry := range entries {
		if entry.AccountID == seller.ID {
			sellerEntry = entry
		}
	}
	require.NotNil(t, sellerEntry)
	assert.Equal(t, *stored.TransactionID, sellerEntry.ID)
	assert.True(t, sellerEntry.Amount.Equal(decimal.RequireFromString("-30000.00")))
}

func TestEngine_ReconcileRepairsTamperedCache(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	seller := e.seedAccount(t, "09125550001", account.RoleSeller, decimal.RequireFromString("50000.00"))

	// Corrupt the fast layer.
	require.NoError(t, e.cache.HardSet(ctx, seller.ID, decimal.RequireFromString("999999.00")))

	balance, err := e.transfers.ReconcileWallet(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("50000.00")))

	e.assertConsistent(t, seller.ID)
}
