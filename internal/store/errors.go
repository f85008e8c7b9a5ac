package store

import "errors"

// ErrLocked is returned by Open when base_dir is already locked by another
// Store instance (this process or another). Concurrent openers over the
// same directory are unsupported; Open fails fast rather than blocking.
var ErrLocked = errors.New("store: directory is locked by another instance")

// ErrClosed is returned by Set and Merge when called on a Store after
// Close. Get treats a closed Store the same as a miss (no value, found =
// false) and Delete is a no-op on one, since neither has an error return to
// carry it.
var ErrClosed = errors.New("store: already closed")
