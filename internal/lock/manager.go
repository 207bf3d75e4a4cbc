// Package lock serializes transfers touching a pair of wallets.
//
// Two layers guard every pair: a process-local mutex keyed by the sorted
// account-id pair collapses shared-store contention among co-located
// workers, and a shared-store lease per wallet bounds the blast radius if a
// worker dies. Both layers acquire in sorted-id order, which rules out
// deadlock between overlapping pairs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kislikjeka/chargehub/pkg/logger"
)

// ErrLockBusy means either lock layer could not be acquired in time.
// Callers must not retry the enclosing transfer.
var ErrLockBusy = errors.New("could not acquire wallet pair lock")

// Leaser is a time-bounded shared-store lock. Acquire returns a holder
// token; Release only succeeds for the token that acquired the lease.
type Leaser interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Config holds lock manager tunables.
type Config struct {
	LeaseTTL       time.Duration // shared lease TTL
	RetryAttempts  int           // lease acquisition attempts per key
	RetryDelay     time.Duration // delay between lease attempts
	AppLockTimeout time.Duration // local mutex acquisition timeout
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LeaseTTL:       60 * time.Second,
		RetryAttempts:  20,
		RetryDelay:     200 * time.Millisecond,
		AppLockTimeout: 5 * time.Second,
	}
}

// Manager implements the two-level wallet pair lock.
type Manager struct {
	leaser Leaser
	cfg    Config
	logger *logger.Logger

	// local holds one 1-buffered channel per pair key. Entries are created
	// on demand and never removed.
	local sync.Map // map[string]chan struct{}
}

// NewManager creates a new lock manager.
func NewManager(leaser Leaser, cfg Config, log *logger.Logger) *Manager {
	return &Manager{
		leaser: leaser,
		cfg:    cfg,
		logger: log.WithField("component", "lock"),
	}
}

// LockPair acquires the process-local mutex for the sorted pair, then the
// shared leases in sorted order. The returned release function gives the
// locks back in reverse order and is safe to call exactly once from a
// defer, including during panic unwinding. a == b degenerates to a single
// lease.
func (m *Manager) LockPair(ctx context.Context, a, b int64) (func(), error) {
	lo, hi := sortPair(a, b)

	pairKey := fmt.Sprintf("%d:%d", lo, hi)
	localLock := m.localLock(pairKey)

	if !acquireTimeout(ctx, localLock, m.cfg.AppLockTimeout) {
		return nil, fmt.Errorf("local lock %s: %w", pairKey, ErrLockBusy)
	}

	keys := []string{leaseKey(lo)}
	if hi != lo {
		keys = append(keys, leaseKey(hi))
	}

	type held struct {
		key   string
		token string
	}
	var leases []held

	releaseAll := func() {
		// Reverse order: hi lease, lo lease, local mutex.
		for i := len(leases) - 1; i >= 0; i-- {
			// Detached context so release still runs when the caller's
			// context is already canceled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.leaser.Release(releaseCtx, leases[i].key, leases[i].token); err != nil {
				m.logger.Error("failed to release lease", "key", leases[i].key, "error", err)
			}
			cancel()
		}
		<-localLock
	}

	for _, key := range keys {
		token, err := m.acquireLease(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		leases = append(leases, held{key: key, token: token})
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

// acquireLease retries lease acquisition up to the configured attempts.
func (m *Manager) acquireLease(ctx context.Context, key string) (string, error) {
	for attempt := 1; attempt <= m.cfg.RetryAttempts; attempt++ {
		token, ok, err := m.leaser.Acquire(ctx, key, m.cfg.LeaseTTL)
		if err != nil {
			return "", fmt.Errorf("lease %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		if attempt < m.cfg.RetryAttempts {
			select {
			case <-time.After(m.cfg.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	m.logger.Warn("lease acquisition exhausted", "key", key, "attempts", m.cfg.RetryAttempts)
	return "", fmt.Errorf("lease %s after %d attempts: %w", key, m.cfg.RetryAttempts, ErrLockBusy)
}

// localLock returns the 1-buffered channel backing the pair's local mutex.
func (m *Manager) localLock(pairKey string) chan struct{} {
	if ch, ok := m.local.Load(pairKey); ok {
		return ch.(chan struct{})
	}
	ch, _ := m.local.LoadOrStore(pairKey, make(chan struct{}, 1))
	return ch.(chan struct{})
}

// acquireTimeout takes the channel mutex, giving up after the timeout.
func acquireTimeout(ctx context.Context, ch chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func sortPair(a, b int64) (int64, int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

func leaseKey(accountID int64) string {
	return fmt.Sprintf("lock:wallet:%d", accountID)
}
