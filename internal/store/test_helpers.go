package store

import (
	"os"
	"testing"
)

// setupTempStore opens a Store rooted at a fresh temp directory and
// registers cleanup to close it and remove the directory when the test
// ends, mirroring the teacher's SetupTempDB helper.
func setupTempStore(tb testing.TB, opts ...Option) (s *Store, path string) {
	tb.Helper()

	path, err := os.MkdirTemp("", "bitdb_test_*")
	if err != nil {
		tb.Fatalf("MkdirTemp: %v", err)
	}

	s, err = Open(path, opts...)
	if err != nil {
		_ = os.RemoveAll(path)
		tb.Fatalf("Open(%q): %v", path, err)
	}

	tb.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(path)
	})

	return s, path
}
