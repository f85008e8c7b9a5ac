package store

import (
	"fmt"
	"testing"
)

func BenchmarkGet(b *testing.B) {
	s, _ := setupTempStore(b)

	for i := 0; i < 10000; i++ {
		_ = s.Set(fmt.Sprintf("k%04d", i), "v")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := s.Get("k0050"); !ok {
			b.Fatalf("Get: miss")
		}
	}
}

func BenchmarkSet(b *testing.B) {
	s, _ := setupTempStore(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("k%04d", i%10000)
		if err := s.Set(key, "value"); err != nil {
			b.Fatalf("Set: %v", err)
		}
	}
}

func BenchmarkSetFsync(b *testing.B) {
	s, _ := setupTempStore(b, WithFsync(true))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("k%04d", i%10000)
		if err := s.Set(key, "value"); err != nil {
			b.Fatalf("Set: %v", err)
		}
	}
}
