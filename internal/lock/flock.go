// Package lock provides a cross-process advisory file lock used to guard
// the database file during schema migration (§4.A, §5).
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Acquire takes an exclusive advisory lock on path, creating the file if it
// does not exist, and returns a release function. It blocks until the lock
// is free or ctx is done.
func Acquire(ctx context.Context, path string) (func(), error) {
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock: acquiring %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock: could not acquire %s", path)
	}

	return func() {
		_ = fl.Unlock()
	}, nil
}
