package script

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the scripts directory while a sync runs.
const LockFileName = ".scriptops.lock"

// ErrLocked is returned when another process holds the directory lock.
var ErrLocked = errors.New("scripts directory is locked by another process")

const lockRetryInterval = 100 * time.Millisecond

// LockDir takes an exclusive cross-process lock on dir, retrying until ctx
// is done. The returned function releases it.
func LockDir(ctx context.Context, dir string) (func() error, error) {
	fl := flock.New(filepath.Join(dir, LockFileName))
	ok, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return fl.Unlock, nil
}
