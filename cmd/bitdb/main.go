// Command bitdb is the CLI front-end for the store: spec.md §6 names it an
// out-of-scope "external collaborator" of the core, consuming only the
// programmatic surface (Open/Get/Set/Delete/Merge).
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/corvidae/bitdb/internal/store"
)

const defaultBaseDir = "db"

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  bitdb create [base_dir]\n")
	fmt.Fprintf(os.Stderr, "  bitdb init [base_dir]\n")
	fmt.Fprintf(os.Stderr, "  bitdb get <key> [base_dir]\n")
	fmt.Fprintf(os.Stderr, "  bitdb set <key> <value> [base_dir]\n")
	fmt.Fprintf(os.Stderr, "  bitdb delete <key> [base_dir]\n")
	fmt.Fprintf(os.Stderr, "  bitdb merge [base_dir]\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	action := os.Args[1]
	rest := os.Args[2:]

	switch action {
	case "create", "init":
		dir := arg(rest, 0, defaultBaseDir)
		openAndClose(dir)

	case "get":
		if len(rest) < 1 {
			usage()
		}
		key := rest[0]
		dir := arg(rest, 1, defaultBaseDir)

		s := open(dir)
		defer closeStore(s)

		val, ok := s.Get(key)
		if !ok {
			fmt.Fprintf(os.Stderr, "key not found: %q\n", key)
			os.Exit(1)
		}
		fmt.Println(val)

	case "set":
		if len(rest) < 2 {
			usage()
		}
		key, val := rest[0], rest[1]
		dir := arg(rest, 2, defaultBaseDir)

		s := open(dir)
		defer closeStore(s)

		if err := s.Set(key, val); err != nil {
			fmt.Fprintf(os.Stderr, "set failed: %v\n", err)
			os.Exit(1)
		}

	case "delete":
		if len(rest) < 1 {
			usage()
		}
		key := rest[0]
		dir := arg(rest, 1, defaultBaseDir)

		s := open(dir)
		defer closeStore(s)
		s.Delete(key)

	case "merge":
		dir := arg(rest, 0, defaultBaseDir)

		s := open(dir)
		defer closeStore(s)

		if err := s.Merge(); err != nil {
			fmt.Fprintf(os.Stderr, "merge failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		usage()
	}
}

// arg returns rest[i] if present, else fallback.
func arg(rest []string, i int, fallback string) string {
	if i < len(rest) {
		return rest[i]
	}
	return fallback
}

func open(dir string) *store.Store {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	s, err := store.Open(dir, store.WithLogger(logger.Sugar()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	return s
}

func openAndClose(dir string) {
	s := open(dir)
	closeStore(s)
}

func closeStore(s *store.Store) {
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close database: %v\n", err)
		os.Exit(1)
	}
}
