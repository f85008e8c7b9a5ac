package record

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		timestamp uint64
		key       string
		value     string
	}{
		{"simple", 1700000000, "hello", "world"},
		{"empty value", 42, "k", ""},
		{"unicode", 1, "köy", "değer"},
		{"large timestamp", 1<<63 - 1, "k", "v"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := Encode(tc.timestamp, tc.key, tc.value)

			if got, want := len(buf), HeaderSize+len(tc.key)+len(tc.value); got != want {
				t.Fatalf("encoded length = %d, want %d", got, want)
			}

			rec, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := Record{Timestamp: tc.timestamp, Key: tc.key, Value: tc.value}
			if diff := cmp.Diff(want, rec, cmpopts.IgnoreFields(Record{}, "CRC")); diff != "" {
				t.Fatalf("Decode mismatch (-want +got):\n%s", diff)
			}
			if !Verify(rec) {
				t.Fatalf("Verify failed on round-tripped record")
			}
		})
	}
}

func TestDecodeShortHeader(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	buf := Encode(1, "key", "value")
	_, err := Decode(buf[:len(buf)-2])
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	buf := Encode(1, "key", "value")
	// Corrupt a byte inside the value to produce invalid UTF-8.
	buf[len(buf)-1] = 0xff
	_, err := Decode(buf)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("want ErrCorrupt for invalid UTF-8, got %v", err)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	buf := Encode(1, "key", "value")
	// Flip a bit inside the value without touching lengths, so Decode
	// succeeds but Verify must catch the mismatch.
	buf[len(buf)-1] ^= 0x01

	rec, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if Verify(rec) {
		t.Fatalf("Verify should have failed after corrupting value bytes")
	}
}

func TestChecksumDomainExcludesSizes(t *testing.T) {
	// The stored CRC must equal a CRC-32 computed independently over
	// exactly timestamp‖key‖value, with the size fields left out.
	a := Encode(7, "k", "v")
	recA, err := Decode(a)
	if err != nil {
		t.Fatal(err)
	}

	domain := make([]byte, 8, 10)
	binary.BigEndian.PutUint64(domain, 7)
	domain = append(domain, "kv"...)
	want := crc32.ChecksumIEEE(domain)

	if recA.CRC != want {
		t.Fatalf("stored CRC = %x, want %x (CRC-32 over timestamp‖key‖value)", recA.CRC, want)
	}
}

func TestIsZeroHeader(t *testing.T) {
	zero := make([]byte, HeaderSize)
	if !IsZeroHeader(zero) {
		t.Fatalf("all-zero buffer should report zero header")
	}

	buf := Encode(1, "k", "v")
	if IsZeroHeader(buf) {
		t.Fatalf("a real record's header should not report as zero")
	}
}

func TestLargeValue(t *testing.T) {
	val := strings.Repeat("x", 1<<16)
	buf := Encode(1, "k", val)
	rec, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Value != val {
		t.Fatalf("large value round-trip mismatch")
	}
	if !Verify(rec) {
		t.Fatalf("Verify failed for large value")
	}
}
