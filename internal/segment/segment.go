// Package segment implements the append-only segment files a store's log is
// made of: naming (<id>.db), opening with create-if-missing append
// semantics, and numeric discovery/ordering of existing segments on disk.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Suffix is the filename suffix every segment file carries.
const Suffix = ".db"

// TempSuffix is appended to Suffix while a merge is rewriting a segment in
// place; a file with this suffix left behind after a crash is an orphan of
// an interrupted merge, never a segment proper.
const TempSuffix = ".db.tmp"

// Segment is a single append-only log file, identified by a monotonically
// increasing id. At most one Segment in a store is active (open for
// append); the rest are sealed (read-only).
type Segment struct {
	ID   int
	Path string
	file *os.File
	size int64
}

// Path returns the on-disk path for segment id within dir.
func Path(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", id, Suffix))
}

// TempPath returns the on-disk path used while merge rewrites segment id.
func TempPath(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", id, TempSuffix))
}

// Create creates a new, empty segment file for id and opens it for
// reading and appending. It fails if the file already exists.
func Create(dir string, id int) (*Segment, error) {
	path := Path(dir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", id, err)
	}
	return &Segment{ID: id, Path: path, file: f, size: 0}, nil
}

// Open opens an existing segment file for id for reading and appending,
// positioning the write cursor at size (the caller is expected to have
// derived size from replay, since a segment's logical size can be smaller
// than its on-disk size if a trailing record was truncated).
func Open(dir string, id int, size int64) (*Segment, error) {
	path := Path(dir, id)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %d: %w", id, err)
	}
	return &Segment{ID: id, Path: path, file: f, size: size}, nil
}

// Size returns the segment's logical size (its write_position).
func (s *Segment) Size() int64 {
	return s.size
}

// Append writes buf to the end of the segment and returns the offset at
// which it was written.
func (s *Segment) Append(buf []byte, fsync bool) (offset int64, err error) {
	offset = s.size

	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return 0, fmt.Errorf("append to segment %d: %w", s.ID, err)
	}
	s.size += int64(len(buf))

	if fsync {
		if err := s.file.Sync(); err != nil {
			return 0, fmt.Errorf("sync segment %d: %w", s.ID, err)
		}
	}

	return offset, nil
}

// ReadAt reads exactly n bytes starting at offset.
func (s *Segment) ReadAt(offset, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read segment %d at %d: %w", s.ID, offset, err)
	}
	return buf, nil
}

// Truncate truncates the underlying file to the segment's logical size,
// discarding any bytes past a replay-detected corruption point.
func (s *Segment) Truncate() error {
	if err := s.file.Truncate(s.size); err != nil {
		return fmt.Errorf("truncate segment %d: %w", s.ID, err)
	}
	return nil
}

// Sync flushes the segment's file to stable storage.
func (s *Segment) Sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync segment %d: %w", s.ID, err)
	}
	return nil
}

// Close closes the segment's file handle.
func (s *Segment) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close segment %d: %w", s.ID, err)
	}
	return nil
}

// Remove closes and deletes the segment's on-disk file.
func (s *Segment) Remove() error {
	_ = s.file.Close()
	if err := os.Remove(s.Path); err != nil {
		return fmt.Errorf("remove segment %d: %w", s.ID, err)
	}
	return nil
}

// Discover lists the segment ids present in dir, sorted numerically
// ascending (not lexicographically: "10.db" sorts after "2.db").
func Discover(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, Suffix) || strings.HasSuffix(name, TempSuffix) {
			continue
		}
		idStr := strings.TrimSuffix(name, Suffix)
		id, err := strconv.Atoi(idStr)
		if err != nil {
			// Not a segment file we recognize; ignore it rather than
			// fail the whole open.
			continue
		}
		ids = append(ids, id)
	}

	sort.Ints(ids)
	return ids, nil
}

// DiscoverOrphanTemps lists the names of the leftover .db.tmp files in
// dir (for example "3.db.tmp") — the artifact of a merge interrupted after the temp file
// was written but before it was renamed into place.
func DiscoverOrphanTemps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), TempSuffix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
