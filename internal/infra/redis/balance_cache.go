package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/chargehub/internal/ledger"
	"github.com/kislikjeka/chargehub/pkg/logger"
	"github.com/kislikjeka/chargehub/pkg/money"
)

const (
	// balanceKeyPrefix is the prefix for per-account balance hashes
	balanceKeyPrefix = "wallet:user:"
	// entriesKeyPrefix is the prefix for per-account entry logs
	entriesKeyPrefix = "transactions:user:"
	// balanceField is the hash field holding the canonical balance string
	balanceField = "balance"
)

// BalanceCache is the Redis-backed fast layer for wallet balances and the
// per-account mirror of recent ledger entries. Balances are stored as
// canonical two-fractional-digit decimal strings to avoid representation
// drift between readers.
type BalanceCache struct {
	client *redis.Client
	logger *logger.Logger
}

// NewBalanceCache creates a new balance cache
func NewBalanceCache(client *redis.Client, log *logger.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		logger: log.WithField("component", "balance_cache"),
	}
}

// BalanceKey returns the cache key for an account's balance hash
func BalanceKey(accountID int64) string {
	return fmt.Sprintf("%s%d", balanceKeyPrefix, accountID)
}

// EntriesKey returns the cache key for an account's entry log
func EntriesKey(accountID int64) string {
	return fmt.Sprintf("%s%d", entriesKeyPrefix, accountID)
}

// ReadBalance returns the cached balance for an account; absent reads as 0.00
func (c *BalanceCache) ReadBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	val, err := c.client.HGet(ctx, BalanceKey(accountID), balanceField).Result()
	if err == redis.Nil {
		return money.Zero, nil
	}
	if err != nil {
		return money.Zero, fmt.Errorf("failed to read cached balance: %w", err)
	}

	d, err := money.Parse(val)
	if err != nil {
		return money.Zero, fmt.Errorf("corrupt cached balance for account %d: %w", accountID, err)
	}
	return d, nil
}

// SeedBalance writes the durable balance into the cache only if the field is
// absent, so the cache is seeded exactly once per wallet.
func (c *BalanceCache) SeedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	seeded, err := c.client.HSetNX(ctx, BalanceKey(accountID), balanceField, money.Canonical(balance)).Result()
	if err != nil {
		return fmt.Errorf("failed to seed cached balance: %w", err)
	}
	if seeded {
		c.logger.Debug("seeded cached balance", "account_id", accountID, "balance", money.Canonical(balance))
	}
	return nil
}

// CompareAndSwap is the optimistic commit primitive. It WATCHes every
// balance key, verifies the caller's expected values, then writes the new
// balances and appends the entry payloads inside one MULTI/EXEC. A
// concurrent write to any watched key or a failed expectation yields
// ledger.ErrCASConflict.
func (c *BalanceCache) CompareAndSwap(ctx context.Context, swaps []ledger.BalanceSwap, appends []ledger.EntryAppend) error {
	if len(swaps) == 0 {
		return nil
	}

	watchKeys := make([]string, len(swaps))
	for i, s := range swaps {
		watchKeys[i] = BalanceKey(s.AccountID)
	}

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, s := range swaps {
			val, err := tx.HGet(ctx, BalanceKey(s.AccountID), balanceField).Result()
			current := money.Zero
			switch {
			case err == redis.Nil:
				// absent reads as 0.00
			case err != nil:
				return fmt.Errorf("failed to read watched balance: %w", err)
			default:
				current, err = money.Parse(val)
				if err != nil {
					return fmt.Errorf("corrupt cached balance for account %d: %w", s.AccountID, err)
				}
			}

			if !current.Equal(s.Expected) {
				return ledger.ErrCASConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, s := range swaps {
				pipe.HSet(ctx, BalanceKey(s.AccountID), balanceField, money.Canonical(s.New))
			}
			for _, a := range appends {
				pipe.RPush(ctx, EntriesKey(a.AccountID), a.Payload)
			}
			return nil
		})
		return err
	}, watchKeys...)

	if err == redis.TxFailedErr {
		return ledger.ErrCASConflict
	}
	return err
}

// HardSet unconditionally rewrites a cached balance. Used only by the
// compensation path, under held wallet locks.
func (c *BalanceCache) HardSet(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if err := c.client.HSet(ctx, BalanceKey(accountID), balanceField, money.Canonical(balance)).Err(); err != nil {
		return fmt.Errorf("failed to hard-set cached balance: %w", err)
	}
	return nil
}

// RemoveEntry removes one occurrence of the payload from the account's
// cached entry log. Used only by the compensation path.
func (c *BalanceCache) RemoveEntry(ctx context.Context, accountID int64, payload []byte) error {
	if err := c.client.LRem(ctx, EntriesKey(accountID), 1, payload).Err(); err != nil {
		return fmt.Errorf("failed to remove cached entry: %w", err)
	}
	return nil
}
