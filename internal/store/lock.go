package store

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName is the exclusive lockfile spec.md §5 recommends ("implementations
// are encouraged to add an exclusive lockfile in base_dir"). It carries no
// data; only its flock state matters.
const lockFileName = ".lock"

// acquireLock takes a non-blocking exclusive flock on dir/.lock, returning
// ErrLocked immediately if another Store (this process or another) already
// holds it. There is no multi-writer support to wait for, so Open fails
// fast rather than blocking on the lock.
func acquireLock(dir string) (*os.File, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lockfile %q: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	return f, nil
}

// releaseLock unlocks and closes the lockfile handle. The lock is also
// implicitly released if the process exits without calling this, since
// flock is tied to the open file description.
func releaseLock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("unlock lockfile: %w", err)
	}
	return f.Close()
}
