package segment

import (
	"os"
	"testing"
)

func TestCreateAppendReadAt(t *testing.T) {
	dir := t.TempDir()

	seg, err := Create(dir, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer seg.Close()

	off, err := seg.Append([]byte("hello"), false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off != 0 {
		t.Fatalf("first append offset = %d, want 0", off)
	}

	off2, err := seg.Append([]byte("world"), false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off2 != 5 {
		t.Fatalf("second append offset = %d, want 5", off2)
	}

	if got := seg.Size(); got != 10 {
		t.Fatalf("Size() = %d, want 10", got)
	}

	buf, err := seg.ReadAt(5, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("ReadAt = %q, want %q", buf, "world")
	}
}

func TestDiscoverSortsNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []int{2, 10, 1, 0} {
		if _, err := os.Create(Path(dir, id)); err != nil {
			t.Fatal(err)
		}
	}
	// An orphan temp file and an unrelated file must not confuse discovery.
	if _, err := os.Create(TempPath(dir, 99)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Create(dir + "/notes.txt"); err != nil {
		t.Fatal(err)
	}

	ids, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []int{0, 1, 2, 10}
	if len(ids) != len(want) {
		t.Fatalf("Discover = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Discover = %v, want %v", ids, want)
		}
	}
}

func TestDiscoverOrphanTemps(t *testing.T) {
	dir := t.TempDir()
	if _, err := os.Create(Path(dir, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Create(TempPath(dir, 3)); err != nil {
		t.Fatal(err)
	}

	names, err := DiscoverOrphanTemps(dir)
	if err != nil {
		t.Fatalf("DiscoverOrphanTemps: %v", err)
	}
	if len(names) != 1 || names[0] != "3.db.tmp" {
		t.Fatalf("DiscoverOrphanTemps = %v, want [3.db.tmp]", names)
	}
}

func TestCreateFailsIfExists(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(dir, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(dir, 0); err == nil {
		t.Fatalf("expected error creating a segment that already exists")
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	seg, err := Create(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := seg.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(Path(dir, 0)); !os.IsNotExist(err) {
		t.Fatalf("expected segment file to be gone")
	}
}
