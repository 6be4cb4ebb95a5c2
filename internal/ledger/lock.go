package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout reports that the ledger's advisory lock could not be
// acquired within the configured timeout.
var ErrLockTimeout = errors.New("ledger lock timeout")

const lockRetryDelay = 10 * time.Millisecond

// ScopedLock is an exclusive advisory file lock held for exactly one apply.
// Acquire it and defer Release so error unwinding gives the lock back.
type ScopedLock struct {
	fl *flock.Flock
}

// acquireLock takes the lock, waiting up to timeout.
func acquireLock(ctx context.Context, path string, timeout time.Duration) (*ScopedLock, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}
	return &ScopedLock{fl: fl}, nil
}

// Release gives the lock back. Safe to call once per acquire.
func (l *ScopedLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
