package lock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/chargehub/pkg/logger"
)

// fakeLeaser is an in-memory Leaser that records acquisition order.
type fakeLeaser struct {
	mu       sync.Mutex
	held     map[string]string
	acquired []string
	released []string
	deny     map[string]bool
}

func newFakeLeaser() *fakeLeaser {
	return &fakeLeaser{
		held: make(map[string]string),
		deny: make(map[string]bool),
	}
}

func (f *fakeLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deny[key] {
		return "", false, nil
	}
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}

	token := fmt.Sprintf("token-%d", len(f.acquired))
	f.held[key] = token
	f.acquired = append(f.acquired, key)
	return token, true, nil
}

func (f *fakeLeaser) Release(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.held[key] == token {
		delete(f.held, key)
	}
	f.released = append(f.released, key)
	return nil
}

func testConfig() Config {
	return Config{
		LeaseTTL:       time.Second,
		RetryAttempts:  3,
		RetryDelay:     time.Millisecond,
		AppLockTimeout: 100 * time.Millisecond,
	}
}

func TestLockPair_SortedAcquisitionOrder(t *testing.T) {
	leaser := newFakeLeaser()
	m := NewManager(leaser, testConfig(), logger.NewDefault("development"))

	release, err := m.LockPair(context.Background(), 9, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"lock:wallet:2", "lock:wallet:9"}, leaser.acquired)

	release()
	assert.Equal(t, []string{"lock:wallet:9", "lock:wallet:2"}, leaser.released)
	assert.Empty(t, leaser.held)
}

func TestLockPair_SameAccountSingleLease(t *testing.T) {
	leaser := newFakeLeaser()
	m := NewManager(leaser, testConfig(), logger.NewDefault("development"))

	release, err := m.LockPair(context.Background(), 5, 5)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, []string{"lock:wallet:5"}, leaser.acquired)
}

func TestLockPair_LeaseExhaustionReleasesPartialState(t *testing.T) {
	leaser := newFakeLeaser()
	leaser.deny["lock:wallet:9"] = true
	m := NewManager(leaser, testConfig(), logger.NewDefault("development"))

	_, err := m.LockPair(context.Background(), 2, 9)
	require.ErrorIs(t, err, ErrLockBusy)

	// The first lease was taken and must be given back.
	assert.Equal(t, []string{"lock:wallet:2"}, leaser.acquired)
	assert.Equal(t, []string{"lock:wallet:2"}, leaser.released)

	// The local mutex must be free again.
	leaser.deny["lock:wallet:9"] = false
	release, err := m.LockPair(context.Background(), 2, 9)
	require.NoError(t, err)
	release()
}

func TestLockPair_LocalTimeout(t *testing.T) {
	leaser := newFakeLeaser()
	m := NewManager(leaser, testConfig(), logger.NewDefault("development"))

	release, err := m.LockPair(context.Background(), 1, 2)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = m.LockPair(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrLockBusy)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestLockPair_DisjointPairsDoNotBlock(t *testing.T) {
	leaser := newFakeLeaser()
	m := NewManager(leaser, testConfig(), logger.NewDefault("development"))

	r1, err := m.LockPair(context.Background(), 1, 2)
	require.NoError(t, err)
	defer r1()

	r2, err := m.LockPair(context.Background(), 3, 4)
	require.NoError(t, err)
	defer r2()
}

func TestLockPair_ReleaseIdempotent(t *testing.T) {
	leaser := newFakeLeaser()
	m := NewManager(leaser, testConfig(), logger.NewDefault("development"))

	release, err := m.LockPair(context.Background(), 1, 2)
	require.NoError(t, err)

	release()
	released := len(leaser.released)
	release()
	assert.Equal(t, released, len(leaser.released))
}

func TestLockPair_SerializesCompetingHolders(t *testing.T) {
	leaser := newFakeLeaser()
	m := NewManager(leaser, Config{
		LeaseTTL:       time.Second,
		RetryAttempts:  50,
		RetryDelay:     time.Millisecond,
		AppLockTimeout: time.Second,
	}, logger.NewDefault("development"))

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := m.LockPair(context.Background(), 1, 2)
			if err != nil {
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "only one holder may be inside the pair lock at a time")
}
