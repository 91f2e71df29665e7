package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) *ClosureGuard {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewClosureGuard(client, time.Minute)
}

func TestClosureGuardAcquireIsExclusive(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, 2017)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = guard.Acquire(ctx, 2017)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, guard.Release(ctx))
	ok, err = guard.Acquire(ctx, 2018)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClosureGuardCheckNotClosing(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	require.NoError(t, guard.CheckNotClosing(ctx))

	ok, err := guard.Acquire(ctx, 2017)
	require.NoError(t, err)
	require.True(t, ok)

	err = guard.CheckNotClosing(ctx)
	require.ErrorIs(t, err, ErrClosureInProgress)

	require.NoError(t, guard.Release(ctx))
	require.NoError(t, guard.CheckNotClosing(ctx))
}

func TestClosureAdvisoryLockIDDistinctPerYear(t *testing.T) {
	require.NotEqual(t, ClosureAdvisoryLockID(2017), ClosureAdvisoryLockID(2018))
}
