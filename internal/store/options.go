package store

import "go.uber.org/zap"

// Option configures a Store at Open time, mirroring the functional-option
// pattern used throughout this codebase's predecessor.
type Option func(*Store)

// WithLogger sets the structured logger Store uses for operational
// diagnostics (orphaned temp-file cleanup, merge progress). Lock contention
// is not logged: Open returns ErrLocked before any option is applied.
// Unset, Store logs to a no-op logger, so callers that don't care about
// observability never pay for it.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithRolloverThreshold sets the maximum logical size, in bytes, the active
// segment may reach before a write rolls it over into a fresh segment. The
// rollover check is performed before the write that would cross it, so this
// is a true upper bound (design note #3, option (a)), not a minimum, for
// every record no larger than n; a single record larger than n is still
// written, into a fresh segment of its own.
func WithRolloverThreshold(n int64) Option {
	return func(s *Store) { s.rolloverThreshold = n }
}

// WithFsync controls whether Set fsyncs the active segment after every
// append. Off by default: durability is best-effort flush-on-close, per
// spec.md §4.4.
func WithFsync(b bool) Option {
	return func(s *Store) { s.fsync = b }
}

// WithMergeThreshold sets the number of sealed segments that must
// accumulate before Set triggers an automatic Merge. Zero disables
// automatic merging; callers can still invoke Merge explicitly.
func WithMergeThreshold(n int) Option {
	return func(s *Store) { s.mergeThreshold = n }
}

const (
	defaultRolloverThreshold = 1 << 20 // 1 MiB
	defaultMergeThreshold    = 0       // automatic merge disabled by default
)
