// Package store implements the store façade (spec.md §4.4): Open replays a
// base directory's segment files to rebuild the key directory, and Get/Set
// /Delete/Merge serve the programmatic surface on top of it.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/corvidae/bitdb/internal/keydir"
	"github.com/corvidae/bitdb/internal/record"
	"github.com/corvidae/bitdb/internal/segment"
)

// Store is a single Bitcask-style key-value store rooted at one base
// directory. It is not safe for concurrent use by multiple goroutines, nor
// for multiple Store instances (in this process or another) to open the
// same directory at once — Open takes an exclusive lockfile to enforce the
// latter. See spec.md §5.
type Store struct {
	dir  string
	lock *os.File

	segments []*segment.Segment // ascending by ID; last is active
	kd       *keydir.KeyDir
	tomb     map[string]struct{}

	nextID int64

	fsync             bool
	rolloverThreshold int64
	mergeThreshold    int

	closed bool

	log *zap.SugaredLogger
}

// Open opens (creating if necessary) the store rooted at dir, replaying its
// segments to rebuild the key directory before returning. It corresponds to
// spec.md §4.4's combined create+init `open`.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", dir, err)
	}

	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}

	// DO NOT shadow err below so the deferred cleanup always sees it.
	defer func() {
		if err != nil {
			_ = releaseLock(lock)
		}
	}()

	st := &Store{
		dir:               dir,
		lock:              lock,
		kd:                keydir.New(),
		tomb:              make(map[string]struct{}),
		rolloverThreshold: defaultRolloverThreshold,
		mergeThreshold:    defaultMergeThreshold,
		log:               zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(st)
	}

	defer func() {
		if err != nil {
			for _, seg := range st.segments {
				_ = seg.Close()
			}
		}
	}()

	if err = st.cleanOrphanTemps(); err != nil {
		return nil, err
	}

	var ids []int
	ids, err = segment.Discover(dir)
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		var seg *segment.Segment
		seg, err = segment.Create(dir, 0)
		if err != nil {
			return nil, err
		}
		st.segments = []*segment.Segment{seg}
		st.nextID = 1
		return st, nil
	}

	for i, id := range ids {
		path := segment.Path(dir, id)
		var info os.FileInfo
		info, err = os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat segment %d: %w", id, err)
		}

		var entries []entry
		var logicalSize int64
		entries, logicalSize, err = scanFile(path, info.Size())
		if err != nil {
			return nil, fmt.Errorf("replay segment %d: %w", id, err)
		}
		for _, e := range entries {
			st.kd.Insert(e.Key, keydir.Locator{
				SegmentID: id,
				Timestamp: e.Timestamp,
				Offset:    e.Offset,
				Length:    e.Length,
			})
		}

		var seg *segment.Segment
		seg, err = segment.Open(dir, id, logicalSize)
		if err != nil {
			return nil, err
		}

		isActive := i == len(ids)-1
		if isActive && logicalSize < info.Size() {
			if err = seg.Truncate(); err != nil {
				return nil, err
			}
		}

		st.segments = append(st.segments, seg)
	}

	st.nextID = int64(ids[len(ids)-1]) + 1
	return st, nil
}

// cleanOrphanTemps removes any "<id>.db.tmp" files left behind by a merge
// that wrote its replacement segment but crashed before the rename that
// would have put it into place (spec.md §4.5's segment-substitution
// strategy). No merge is ever in flight across a call to Open, so the set
// of temp files this process expects to find is always empty; any temp
// file actually present is therefore exactly the orphan set, found the
// same way the teacher's manifest/directory-drift check does it.
func (s *Store) cleanOrphanTemps() error {
	names, err := segment.DiscoverOrphanTemps(s.dir)
	if err != nil {
		return err
	}

	expected := mapset.NewSet[string]()
	actual := mapset.NewSet[string](names...)

	orphans := actual.Difference(expected).ToSlice()
	sort.Strings(orphans)
	if len(orphans) > 0 {
		s.log.Warnw("removing orphaned temp segments left by an interrupted merge",
			"dir", s.dir, "files", orphans)
	}
	for _, name := range orphans {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("remove orphaned temp segment %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) active() *segment.Segment {
	return s.segments[len(s.segments)-1]
}

// Get returns the value stored under key, and whether it was found. A miss
// (absent key, a record whose checksum fails to verify, or a Store already
// Closed) is not an error: it is reported by the boolean return per spec.md
// §4.4 and §7.
func (s *Store) Get(key string) (string, bool) {
	if s.closed {
		return "", false
	}

	loc, ok := s.kd.Find(key)
	if !ok {
		return "", false
	}

	seg, ok := s.segmentByID(loc.SegmentID)
	if !ok {
		return "", false
	}

	buf, err := seg.ReadAt(loc.Offset, loc.Length)
	if err != nil {
		return "", false
	}

	rec, err := record.Decode(buf)
	if err != nil || !record.Verify(rec) {
		return "", false
	}

	return rec.Value, true
}

func (s *Store) segmentByID(id int) (*segment.Segment, bool) {
	for _, seg := range s.segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return nil, false
}

// Set writes key=value, rolling the active segment over first if the write
// would cross the rollover threshold (design note #3, option (a): a true
// upper bound on segment size, except that a record larger than the
// threshold gets a fresh segment of its own). It returns ErrClosed if the
// Store has already been Closed.
func (s *Store) Set(key, value string) error {
	if s.closed {
		return ErrClosed
	}

	timestamp := uint64(time.Now().Unix())
	buf := record.Encode(timestamp, key, value)
	length := int64(len(buf))

	active := s.active()
	if active.Size()+length > s.rolloverThreshold {
		rolled, err := s.rollover()
		if err != nil {
			return err
		}
		active = rolled
	}

	offset, err := active.Append(buf, s.fsync)
	if err != nil {
		return err
	}

	s.kd.Insert(key, keydir.Locator{
		SegmentID: active.ID,
		Timestamp: timestamp,
		Offset:    offset,
		Length:    length,
	})
	delete(s.tomb, key)

	if s.mergeThreshold > 0 && len(s.segments)-1 >= s.mergeThreshold {
		return s.Merge()
	}
	return nil
}

// rollover closes out the active segment (logically; it stays open for
// reads) and opens a fresh, higher-id one for writes.
func (s *Store) rollover() (*segment.Segment, error) {
	id := int(atomic.AddInt64(&s.nextID, 1) - 1)
	seg, err := segment.Create(s.dir, id)
	if err != nil {
		return nil, err
	}
	s.segments = append(s.segments, seg)
	return seg, nil
}

// Delete removes key from the key directory and records it in the
// tombstone set. No record is written to the log: per spec.md §4.4 this is
// a deliberate, documented limitation (design note #4) — a crash between
// Delete and the next Merge resurrects the key on replay. Delete cannot
// fail from core logic; deleting an absent key, or calling Delete on an
// already-Closed Store, is a no-op.
func (s *Store) Delete(key string) {
	if s.closed {
		return
	}
	s.kd.Delete(key)
	s.tomb[key] = struct{}{}
}

// Close releases the store's segment handles and its exclusive lockfile.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, seg := range s.segments {
		if err := seg.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := releaseLock(s.lock); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
