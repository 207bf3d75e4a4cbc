package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the stored token matches the
// holder's, so an expired lease re-acquired by another worker is never
// released by the original holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseClient implements a shared-store lease on Redis. SET NX EX gives
// atomic acquire-with-TTL; the TTL bounds how long a dead worker can hold a
// wallet.
type LeaseClient struct {
	client *redis.Client
}

// NewLeaseClient creates a new lease client
func NewLeaseClient(client *redis.Client) *LeaseClient {
	return &LeaseClient{client: client}
}

// Acquire attempts to take the lease. ok is false when another holder owns
// the key.
func (l *LeaseClient) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release gives the lease back if the token still owns it.
func (l *LeaseClient) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}
