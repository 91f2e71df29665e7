package shared

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// closureLockKey marks an in-flight fiscal-year closure process-wide.
const closureLockKey = "fiscalyear:closure:lock"

// ClosureAdvisoryLockID keys the Postgres advisory lock held for the whole
// closure transaction. The year keeps retried closures of different years
// from contending on the same lock.
func ClosureAdvisoryLockID(ethiopianYear int) int64 {
	return int64(7_600_000 + ethiopianYear)
}

// ClosureGuard coordinates the closure critical section across request
// handlers. Work-order transitions and requisition approvals consult it to
// fail fast with ErrClosureInProgress instead of racing the archival batch.
type ClosureGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClosureGuard constructs a guard. The TTL bounds how long a crashed
// closure can keep the system read-only.
func NewClosureGuard(rdb *redis.Client, ttl time.Duration) *ClosureGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ClosureGuard{rdb: rdb, ttl: ttl}
}

// Acquire marks a closure as in progress for the given year. Returns false
// when another closure already holds the marker.
func (g *ClosureGuard) Acquire(ctx context.Context, ethiopianYear int) (bool, error) {
	if g == nil || g.rdb == nil {
		return false, errors.New("closure guard not initialised")
	}
	return g.rdb.SetNX(ctx, closureLockKey, strconv.Itoa(ethiopianYear), g.ttl).Result()
}

// Release clears the marker after the closure transaction ends.
func (g *ClosureGuard) Release(ctx context.Context) error {
	if g == nil || g.rdb == nil {
		return errors.New("closure guard not initialised")
	}
	return g.rdb.Del(ctx, closureLockKey).Err()
}

// InProgress reports whether a closure currently holds the marker.
func (g *ClosureGuard) InProgress(ctx context.Context) (bool, error) {
	if g == nil || g.rdb == nil {
		return false, nil
	}
	_, err := g.rdb.Get(ctx, closureLockKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CheckNotClosing is the guard consulted on every mutating work-order or
// requisition path.
func (g *ClosureGuard) CheckNotClosing(ctx context.Context) error {
	busy, err := g.InProgress(ctx)
	if err != nil {
		return err
	}
	if busy {
		return ErrClosureInProgress
	}
	return nil
}
