// internal/inventory/infrastructure/lock_manager.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"bazaar/internal/inventory/domain"
	"bazaar/internal/inventory/domain/port"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/redis"
)

const (
	releaseLockScriptName = "release_lock"
	stealLockScriptName   = "steal_lock"
)

// releaseLockScript deletes the lock key only if the caller still owns it,
// so a slow worker can never release a lock someone else acquired after its
// lease lapsed.
var releaseLockScript = `
-- KEYS[1]: lock key, e.g. lock:product:{pro_1}
-- ARGV[1]: owner token expected to hold the lock
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// stealLockScript atomically replaces a specific stale owner with the new
// one. The compare guards against a concurrent release-and-reacquire between
// the steal check and the takeover.
var stealLockScript = `
-- KEYS[1]: lock key
-- ARGV[1]: stale owner token observed by the steal check
-- ARGV[2]: new owner token
-- ARGV[3]: lease TTL in milliseconds
if redis.call('get', KEYS[1]) == ARGV[1] then
    redis.call('del', KEYS[1])
    redis.call('set', KEYS[1], ARGV[2], 'PX', ARGV[3])
    return 1
end
return 0
`

// RedisLockManager implements port.LockManager as a lease lock in Redis.
// It reduces wasted contention on the ledger's conditional update and makes
// "who holds this product" inspectable; the ledger update remains the sole
// correctness gate. Lock acquisition and the ledger update are two separate
// operations, not one atomic unit.
type RedisLockManager struct {
	client *redis.Client
	lookup port.ReservationStatusLookup

	retries    int
	retryDelay time.Duration
}

// NewRedisLockManager loads the lock scripts and returns the manager.
func NewRedisLockManager(client *redis.Client, lookup port.ReservationStatusLookup, retries int, retryDelay time.Duration) (*RedisLockManager, error) {
	if err := client.LoadScriptFromContent(releaseLockScriptName, releaseLockScript); err != nil {
		return nil, fmt.Errorf("failed to load release lock script: %w", err)
	}
	if err := client.LoadScriptFromContent(stealLockScriptName, stealLockScript); err != nil {
		return nil, fmt.Errorf("failed to load steal lock script: %w", err)
	}
	if retries < 1 {
		retries = 1
	}
	return &RedisLockManager{
		client:     client,
		lookup:     lookup,
		retries:    retries,
		retryDelay: retryDelay,
	}, nil
}

func lockKey(productID string) string {
	return fmt.Sprintf("lock:product:{%s}", productID)
}

// Acquire takes the product lease for owner. When another token holds the
// key, the steal check consults the reservation implied by that token: a
// missing, non-active, or expired reservation forfeits the lock. Exhausting
// the bounded retries returns domain.ErrLockHeld.
func (m *RedisLockManager) Acquire(ctx context.Context, productID, owner string, ttl time.Duration) error {
	key := lockKey(productID)
	rdb := m.client.GetClient()

	for attempt := 0; attempt < m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}

		ok, err := rdb.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return errors.Wrap(err, "lock setnx")
		}
		if ok {
			return nil
		}

		current, err := rdb.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				// Key vanished between SetNX and Get; race again.
				continue
			}
			return errors.Wrap(err, "lock owner read")
		}
		if current == owner {
			// Re-entrant acquire within the same reservation.
			return nil
		}

		stale, err := m.ownerIsStale(ctx, current)
		if err != nil {
			return err
		}
		if !stale {
			continue
		}

		stolen, err := m.client.RunScript(ctx, stealLockScriptName, []string{key}, current, owner, ttl.Milliseconds())
		if err != nil {
			return errors.Wrap(err, "lock steal")
		}
		if code, _ := stolen.(int64); code == 1 {
			logger.Ctx(ctx).Warn().
				Str("product_id", productID).
				Str("stale_owner", current).
				Str("new_owner", owner).
				Msg("stole expired product lock")
			lockStealsTotal.Inc()
			return nil
		}
	}

	return domain.ErrLockHeld
}

// Release deletes the lock only while owner still holds it.
func (m *RedisLockManager) Release(ctx context.Context, productID, owner string) error {
	_, err := m.client.RunScript(ctx, releaseLockScriptName, []string{lockKey(productID)}, owner)
	return errors.Wrap(err, "lock release")
}

// ownerIsStale decides whether the current holder's reservation still
// justifies the lock.
func (m *RedisLockManager) ownerIsStale(ctx context.Context, currentOwner string) (bool, error) {
	reservationID, ok := domain.ReservationIDFromOwner(currentOwner)
	if !ok {
		// Unrecognized token format; treat as stale rather than wedge the
		// product forever.
		return true, nil
	}
	status, expiresAt, err := m.lookup.Status(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			// Lock written but its reservation never persisted (reserve
			// rolled back); the holder is gone.
			return true, nil
		}
		return false, errors.Wrap(err, "lock steal check")
	}
	if status != domain.StatusActive {
		return true, nil
	}
	return time.Now().After(expiresAt), nil
}
