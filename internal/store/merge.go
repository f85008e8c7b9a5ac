package store

import (
	"fmt"
	"os"

	"github.com/corvidae/bitdb/internal/keydir"
	"github.com/corvidae/bitdb/internal/segment"
)

// Merge reclaims space from sealed segments by rewriting each one with only
// the records the key directory still points at (spec.md §4.5). The active
// segment (highest id) is excluded, per design note #6.
//
// Segment substitution is used, not in-place zeroing (design note #5): each
// sealed segment is rewritten into a fresh "<id>.db.tmp" file containing
// only its live records, synced, renamed over the original, and the
// directory itself is fsynced so the rename is durable. Directory entries
// whose segment id matches are repointed at the new offsets. A sealed
// segment left with no live records is unlinked instead of being rewritten
// empty. Merge returns ErrClosed if the Store has already been Closed.
func (s *Store) Merge() error {
	if s.closed {
		return ErrClosed
	}

	sealed := s.segments[:len(s.segments)-1]
	s.log.Infow("merge starting", "dir", s.dir, "sealed_segments", len(sealed))

	kept := make([]*segment.Segment, 0, len(s.segments))
	for _, seg := range sealed {
		newSeg, liveCount, err := s.rewriteSegment(seg)
		if err != nil {
			return fmt.Errorf("merge segment %d: %w", seg.ID, err)
		}

		if liveCount == 0 {
			if newSeg != nil {
				if err := newSeg.Remove(); err != nil {
					return fmt.Errorf("remove empty merged segment %d: %w", seg.ID, err)
				}
			}
			s.log.Infow("merge removed empty segment", "segment_id", seg.ID)
			continue
		}
		s.log.Infow("merge rewrote segment", "segment_id", seg.ID, "live_records", liveCount)
		kept = append(kept, newSeg)
	}

	kept = append(kept, s.active())
	s.segments = kept
	s.tomb = make(map[string]struct{})
	s.log.Infow("merge complete", "dir", s.dir, "segments_remaining", len(kept))
	return nil
}

// rewriteSegment walks seg's records (using the same scan state machine as
// replay) and writes the ones the key directory still attributes to
// (seg.ID, their original offset) into a fresh temp file, which it then
// renames over seg's path. It returns the reopened segment and how many
// live records it retained; a nil segment with liveCount 0 means the
// original file was removed outright.
func (s *Store) rewriteSegment(seg *segment.Segment) (*segment.Segment, int, error) {
	path := segment.Path(s.dir, seg.ID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}

	entries, _, err := scanFile(path, info.Size())
	if err != nil {
		return nil, 0, err
	}

	type rewrite struct {
		key       string
		oldOffset int64
		newOffset int64
		length    int64
	}
	var rewrites []rewrite

	tmpPath := segment.TempPath(s.dir, seg.ID)
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("create merge temp file: %w", err)
	}
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var writeOffset int64
	for _, e := range entries {
		cur, ok := s.kd.Find(e.Key)
		if !ok || cur.SegmentID != seg.ID || cur.Offset != e.Offset {
			continue // stale: superseded or deleted since this record was written
		}

		buf, readErr := seg.ReadAt(e.Offset, e.Length)
		if readErr != nil {
			return nil, 0, fmt.Errorf("read live record %q: %w", e.Key, readErr)
		}
		if _, writeErr := tmp.WriteAt(buf, writeOffset); writeErr != nil {
			return nil, 0, fmt.Errorf("write live record %q: %w", e.Key, writeErr)
		}

		rewrites = append(rewrites, rewrite{key: e.Key, oldOffset: e.Offset, newOffset: writeOffset, length: e.Length})
		writeOffset += e.Length
	}

	if len(rewrites) == 0 {
		_ = tmp.Close()
		tmp = nil
		if err := os.Remove(tmpPath); err != nil {
			return nil, 0, fmt.Errorf("remove empty merge temp file: %w", err)
		}
		if err := seg.Remove(); err != nil {
			return nil, 0, err
		}
		return nil, 0, nil
	}

	if err := tmp.Sync(); err != nil {
		return nil, 0, fmt.Errorf("sync merge temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		tmp = nil
		return nil, 0, fmt.Errorf("close merge temp file: %w", err)
	}

	if err := seg.Close(); err != nil {
		tmp = nil
		return nil, 0, fmt.Errorf("close old segment %d before rename: %w", seg.ID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		tmp = nil
		return nil, 0, fmt.Errorf("rename merge temp file over segment %d: %w", seg.ID, err)
	}
	tmp = nil // rename succeeded: nothing left to clean up

	// Fsync the directory so the rename itself is durable, the final step
	// of the temp-file-then-rename sequence.
	d, err := os.Open(s.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("open segment directory %q: %w", s.dir, err)
	}
	syncErr := d.Sync()
	closeErr := d.Close()
	if syncErr != nil {
		return nil, 0, fmt.Errorf("sync segment directory %q: %w", s.dir, syncErr)
	}
	if closeErr != nil {
		return nil, 0, fmt.Errorf("close segment directory %q: %w", s.dir, closeErr)
	}

	newSeg, err := segment.Open(s.dir, seg.ID, writeOffset)
	if err != nil {
		return nil, 0, err
	}

	for _, rw := range rewrites {
		// Only repoint the directory entry if it still refers to this exact
		// pre-merge location: the key may have been overwritten or deleted
		// by a caller between the scan above and this point. There is no
		// concurrent writer in this store's model (spec.md §5), so in
		// practice nothing changes between scan and repoint, but the guard
		// costs nothing and keeps Invariant 1 honest either way.
		cur, ok := s.kd.Find(rw.key)
		if !ok || cur.SegmentID != seg.ID || cur.Offset != rw.oldOffset {
			continue
		}
		s.kd.Insert(rw.key, keydir.Locator{
			SegmentID: seg.ID,
			Timestamp: cur.Timestamp,
			Offset:    rw.newOffset,
			Length:    rw.length,
		})
	}

	return newSeg, len(rewrites), nil
}
