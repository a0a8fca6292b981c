package listing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLockStaleAfter is the age after which a regeneration lock may be
// taken over by another caller.
const DefaultLockStaleAfter = 30 * time.Second

// Lock records who holds a group's regeneration lock and since when.
type Lock struct {
	Owner      string
	AcquiredAt time.Time
}

func newLock(now time.Time) Lock {
	return Lock{Owner: uuid.NewString(), AcquiredAt: now}
}

// LockTable is an atomic map from group to Lock.
type LockTable interface {
	// InsertIfAbsent stores lock for key unless a lock is present. It returns
	// the lock that is stored after the call and whether it was inserted.
	InsertIfAbsent(ctx context.Context, key string, lock Lock) (Lock, bool, error)
	// CompareAndDelete removes key only if it still holds lock.
	CompareAndDelete(ctx context.Context, key string, lock Lock) (bool, error)
}

// MemoryLockTable is an in-process LockTable.
type MemoryLockTable struct {
	locks sync.Map
}

var _ LockTable = (*MemoryLockTable)(nil)

func NewMemoryLockTable() *MemoryLockTable {
	return &MemoryLockTable{}
}

func (t *MemoryLockTable) InsertIfAbsent(ctx context.Context, key string, lock Lock) (Lock, bool, error) {
	actual, loaded := t.locks.LoadOrStore(key, lock)
	return actual.(Lock), !loaded, nil
}

func (t *MemoryLockTable) CompareAndDelete(ctx context.Context, key string, lock Lock) (bool, error) {
	return t.locks.CompareAndDelete(key, lock), nil
}

// acquire takes the lock for key, stealing it when the holder is older than
// staleAfter. Among concurrent stealers exactly one wins.
func acquire(ctx context.Context, table LockTable, key string, now time.Time, staleAfter time.Duration) (Lock, bool, error) {
	mine := newLock(now)

	held, inserted, err := table.InsertIfAbsent(ctx, key, mine)
	if err != nil || inserted {
		return mine, inserted, err
	}
	if now.Sub(held.AcquiredAt) < staleAfter {
		return Lock{}, false, nil
	}

	deleted, err := table.CompareAndDelete(ctx, key, held)
	if err != nil || !deleted {
		return Lock{}, false, err
	}
	_, inserted, err = table.InsertIfAbsent(ctx, key, mine)
	if err != nil || !inserted {
		return Lock{}, false, err
	}
	return mine, true, nil
}
