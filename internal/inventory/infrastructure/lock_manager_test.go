// internal/inventory/infrastructure/lock_manager_test.go
package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/inventory/domain"
	"bazaar/internal/pkg/redis"
)

type reservationState struct {
	status    domain.ReservationStatus
	expiresAt time.Time
}

type fakeStatusLookup struct {
	reservations map[string]reservationState
}

func (f *fakeStatusLookup) Status(ctx context.Context, reservationID string) (domain.ReservationStatus, time.Time, error) {
	state, ok := f.reservations[reservationID]
	if !ok {
		return "", time.Time{}, domain.ErrReservationNotFound
	}
	return state.status, state.expiresAt, nil
}

func newTestLockManager(t *testing.T, lookup *fakeStatusLookup) (*RedisLockManager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	if lookup == nil {
		lookup = &fakeStatusLookup{reservations: map[string]reservationState{}}
	}
	mgr, err := NewRedisLockManager(redis.NewClientFromRdb(rdb), lookup, 2, time.Millisecond)
	require.NoError(t, err)
	return mgr, srv
}

func TestAcquireSetsOwnerToken(t *testing.T) {
	mgr, srv := newTestLockManager(t, nil)
	ctx := context.Background()

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-abc", time.Minute))

	got, err := srv.Get(lockKey("p-1"))
	require.NoError(t, err)
	assert.Equal(t, "res-abc", got)
}

func TestAcquireIsReentrantForSameOwner(t *testing.T) {
	lookup := &fakeStatusLookup{reservations: map[string]reservationState{
		"abc": {status: domain.StatusActive, expiresAt: time.Now().Add(time.Hour)},
	}}
	mgr, _ := newTestLockManager(t, lookup)
	ctx := context.Background()

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-abc", time.Minute))
	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-abc", time.Minute))
}

func TestAcquireFailsWhileActiveHolderPresent(t *testing.T) {
	lookup := &fakeStatusLookup{reservations: map[string]reservationState{
		"holder": {status: domain.StatusActive, expiresAt: time.Now().Add(time.Hour)},
	}}
	mgr, _ := newTestLockManager(t, lookup)
	ctx := context.Background()

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-holder", time.Minute))

	err := mgr.Acquire(ctx, "p-1", "res-other", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestAcquireStealsWhenReservationMissing(t *testing.T) {
	// A lock whose reservation never persisted, e.g. a reserve that rolled
	// back after taking the lock, must not wedge the product.
	mgr, srv := newTestLockManager(t, nil)
	ctx := context.Background()

	require.NoError(t, srv.Set(lockKey("p-1"), "res-gone"))

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-new", time.Minute))

	got, err := srv.Get(lockKey("p-1"))
	require.NoError(t, err)
	assert.Equal(t, "res-new", got)
}

func TestAcquireStealsWhenReservationTerminal(t *testing.T) {
	lookup := &fakeStatusLookup{reservations: map[string]reservationState{
		"done": {status: domain.StatusReleased, expiresAt: time.Now().Add(time.Hour)},
	}}
	mgr, srv := newTestLockManager(t, lookup)
	ctx := context.Background()

	require.NoError(t, srv.Set(lockKey("p-1"), "res-done"))

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-new", time.Minute))

	got, err := srv.Get(lockKey("p-1"))
	require.NoError(t, err)
	assert.Equal(t, "res-new", got)
}

func TestAcquireStealsWhenReservationExpired(t *testing.T) {
	lookup := &fakeStatusLookup{reservations: map[string]reservationState{
		"old": {status: domain.StatusActive, expiresAt: time.Now().Add(-time.Minute)},
	}}
	mgr, srv := newTestLockManager(t, lookup)
	ctx := context.Background()

	require.NoError(t, srv.Set(lockKey("p-1"), "res-old"))

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-new", time.Minute))

	got, err := srv.Get(lockKey("p-1"))
	require.NoError(t, err)
	assert.Equal(t, "res-new", got)
}

func TestAcquireStealsUnrecognizedToken(t *testing.T) {
	mgr, srv := newTestLockManager(t, nil)
	ctx := context.Background()

	require.NoError(t, srv.Set(lockKey("p-1"), "garbage-token"))

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-new", time.Minute))
}

func TestReleaseOnlyByOwner(t *testing.T) {
	mgr, srv := newTestLockManager(t, nil)
	ctx := context.Background()

	require.NoError(t, mgr.Acquire(ctx, "p-1", "res-abc", time.Minute))

	// Wrong owner is a no-op.
	require.NoError(t, mgr.Release(ctx, "p-1", "res-other"))
	assert.True(t, srv.Exists(lockKey("p-1")))

	require.NoError(t, mgr.Release(ctx, "p-1", "res-abc"))
	assert.False(t, srv.Exists(lockKey("p-1")))
}

// failingGetHook makes every GET fail while other commands pass through,
// simulating a Redis that degrades mid-acquire.
type failingGetHook struct {
	err error
}

func (h failingGetHook) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h failingGetHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() == "get" {
			return h.err
		}
		return next(ctx, cmd)
	}
}

func (h failingGetHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestAcquireSurfacesOwnerReadFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	require.NoError(t, srv.Set(lockKey("p-1"), "res-holder"))
	rdb.AddHook(failingGetHook{err: errors.New("connection reset")})

	lookup := &fakeStatusLookup{reservations: map[string]reservationState{}}
	mgr, err := NewRedisLockManager(redis.NewClientFromRdb(rdb), lookup, 2, time.Millisecond)
	require.NoError(t, err)

	err = mgr.Acquire(context.Background(), "p-1", "res-new", time.Minute)
	require.Error(t, err)
	// A broken connection is an error, never a "lock is busy" verdict.
	assert.NotErrorIs(t, err, domain.ErrLockHeld)
	assert.Contains(t, err.Error(), "lock owner read")
}
