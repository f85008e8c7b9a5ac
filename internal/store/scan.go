package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/corvidae/bitdb/internal/record"
)

// entry is one decoded record found while scanning a segment file, carrying
// just what the key directory and merge need: not the value bytes
// themselves, which stay on disk until Get actually asks for them.
type entry struct {
	Key       string
	Timestamp uint64
	Offset    int64
	Length    int64
}

// scanFile walks the record frames in the file at path from offset 0 up to
// size, implementing the replay/merge state machine from spec.md §4.5:
// Ready -> read a 28-byte header -> a zero CRC field or a short read means
// Done; a header that declares a payload running past size is a truncated
// trailing record, which is fatal (Corrupt) for this file; otherwise the
// frame is decoded and its checksum verified, and scanning continues at the
// next offset.
//
// It returns every live-at-scan-time entry together with the logical size
// the file's good data ends at (equal to size itself unless scanning
// stopped early at a zero-header or short tail).
func scanFile(path string, size int64) ([]entry, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %q for replay: %w", path, err)
	}
	defer f.Close()

	var entries []entry
	var offset int64

	header := make([]byte, record.HeaderSize)
	for offset < size {
		if size-offset < record.HeaderSize {
			break
		}
		if _, err := f.ReadAt(header, offset); err != nil {
			return nil, 0, fmt.Errorf("read header at %d in %q: %w", offset, path, err)
		}
		if record.IsZeroHeader(header) {
			break
		}

		keySize := binary.BigEndian.Uint64(header[12:20])
		valueSize := binary.BigEndian.Uint64(header[20:28])
		length := record.HeaderSize + int64(keySize) + int64(valueSize)

		if offset+length > size {
			return nil, 0, fmt.Errorf("%w: truncated record at offset %d in %q", record.ErrCorrupt, offset, path)
		}

		buf := make([]byte, length)
		if _, err := f.ReadAt(buf, offset); err != nil {
			return nil, 0, fmt.Errorf("read record at %d in %q: %w", offset, path, err)
		}

		rec, err := record.Decode(buf)
		if err != nil {
			return nil, 0, fmt.Errorf("decode record at %d in %q: %w", offset, path, err)
		}
		if !record.Verify(rec) {
			return nil, 0, fmt.Errorf("%w: record at offset %d in %q", record.ErrChecksumMismatch, offset, path)
		}

		entries = append(entries, entry{
			Key:       rec.Key,
			Timestamp: rec.Timestamp,
			Offset:    offset,
			Length:    length,
		})
		offset += length
	}

	return entries, offset, nil
}
