// Package record implements the on-disk record frame used by every segment
// file: a fixed 28-byte header followed by raw key and value bytes.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"unicode/utf8"
)

// HeaderSize is the width of the fixed header: crc(4) + timestamp(8) +
// key_size(8) + value_size(8).
const HeaderSize = 28

// ErrCorrupt is returned when a buffer cannot be decoded into a record:
// the header doesn't fit, the payload is truncated, or the key/value bytes
// are not valid UTF-8.
var ErrCorrupt = errors.New("record: corrupt")

// ErrChecksumMismatch is returned when a record decodes cleanly but its
// stored CRC does not match the recomputed checksum.
var ErrChecksumMismatch = errors.New("record: checksum mismatch")

// Record is the decoded form of one on-disk frame.
type Record struct {
	Timestamp uint64
	Key       string
	Value     string
	CRC       uint32
}

// Len returns the total on-disk length of the record (header + key + value).
func (r Record) Len() int64 {
	return HeaderSize + int64(len(r.Key)) + int64(len(r.Value))
}

// checksum computes the CRC-32 (IEEE / ISO-HDLC polynomial) over
// timestamp ‖ key ‖ value. The size fields are deliberately excluded from
// the checksum domain.
func checksum(timestamp uint64, key, value string) uint32 {
	h := crc32.NewIEEE()
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)
	h.Write(tsBuf[:])
	h.Write([]byte(key))
	h.Write([]byte(value))
	return h.Sum32()
}

// Encode produces the 28-byte header followed by key then value bytes.
func Encode(timestamp uint64, key, value string) []byte {
	buf := make([]byte, HeaderSize+len(key)+len(value))

	crc := checksum(timestamp, key, value)
	binary.BigEndian.PutUint32(buf[0:4], crc)
	binary.BigEndian.PutUint64(buf[4:12], timestamp)
	binary.BigEndian.PutUint64(buf[12:20], uint64(len(key)))
	binary.BigEndian.PutUint64(buf[20:28], uint64(len(value)))
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	return buf
}

// Decode parses buf into a Record. It fails with ErrCorrupt when buf is
// shorter than the header, shorter than the header-declared payload, or
// when the key or value bytes are not valid UTF-8. Decode does not verify
// the checksum; call Verify for that.
func Decode(buf []byte) (Record, error) {
	if len(buf) < HeaderSize {
		return Record{}, fmt.Errorf("%w: buffer of %d bytes shorter than header", ErrCorrupt, len(buf))
	}

	crc := binary.BigEndian.Uint32(buf[0:4])
	timestamp := binary.BigEndian.Uint64(buf[4:12])
	keySize := binary.BigEndian.Uint64(buf[12:20])
	valueSize := binary.BigEndian.Uint64(buf[20:28])

	want := HeaderSize + keySize + valueSize
	if uint64(len(buf)) < want {
		return Record{}, fmt.Errorf("%w: payload truncated, want %d bytes got %d", ErrCorrupt, want, len(buf))
	}

	keyBytes := buf[HeaderSize : HeaderSize+keySize]
	valueBytes := buf[HeaderSize+keySize : HeaderSize+keySize+valueSize]

	if !utf8.Valid(keyBytes) {
		return Record{}, fmt.Errorf("%w: key is not valid UTF-8", ErrCorrupt)
	}
	if !utf8.Valid(valueBytes) {
		return Record{}, fmt.Errorf("%w: value is not valid UTF-8", ErrCorrupt)
	}

	return Record{
		Timestamp: timestamp,
		Key:       string(keyBytes),
		Value:     string(valueBytes),
		CRC:       crc,
	}, nil
}

// Verify recomputes the CRC over the canonical domain and reports whether
// it matches the record's stored CRC.
func Verify(r Record) bool {
	return checksum(r.Timestamp, r.Key, r.Value) == r.CRC
}

// IsZeroHeader reports whether buf (which must be at least HeaderSize bytes)
// begins with a 4-byte zero CRC field, the end-of-data sentinel used when
// scanning a pre-allocated-but-unwritten segment tail (design note #2).
// Encode does not rule out a record whose CRC happens to be zero; such a
// record would also read as end-of-data.
func IsZeroHeader(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	return buf[0] == 0 && buf[1] == 0 && buf[2] == 0 && buf[3] == 0
}
