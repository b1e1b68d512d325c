package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/source-fast/internal/config"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRunIndexesTextFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "src/util.go", "package main\n\nfunc helper() {}\n")

	cfg := config.Default(root)
	ix, err := Open(root, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	if err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, found, err := ix.store.FileByPath("src/main.go")
	if err != nil {
		t.Fatalf("FileByPath: %v", err)
	}
	if !found {
		t.Fatalf("expected src/main.go to be indexed")
	}
	if rec.Size == 0 {
		t.Errorf("expected non-zero size")
	}
}

func TestRunSkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.bin", "\x00\x01\x02binary garbage\x00\x00")

	cfg := config.Default(root)
	ix, err := Open(root, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	if err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, found, err := ix.store.FileByPath("data.bin")
	if err != nil {
		t.Fatalf("FileByPath: %v", err)
	}
	if found {
		t.Errorf("expected binary file to not be indexed")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n")

	cfg := config.Default(root)
	ix, err := Open(root, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	if err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	if err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run 2: %v", err)
	}

	rec, found, err := ix.store.FileByPath("a.go")
	if err != nil || !found {
		t.Fatalf("expected a.go indexed after two runs: found=%v err=%v", found, err)
	}
	_ = rec
}

func TestRunReindexesModifiedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n")

	cfg := config.Default(root)
	ix, err := Open(root, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	if err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	first, _, _ := ix.store.FileByPath("a.go")

	writeFile(t, root, "a.go", "package main\n\nfunc main() {}\n")
	if err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	second, found, err := ix.store.FileByPath("a.go")
	if err != nil || !found {
		t.Fatalf("expected a.go still indexed: found=%v err=%v", found, err)
	}
	if first.ContentHash == second.ContentHash {
		t.Errorf("expected content hash to change after file modification")
	}
}

func TestRunEmitsProgressEvents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n")

	cfg := config.Default(root)
	ix, err := Open(root, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	events := make(chan Event, 16)
	if err := ix.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(events)

	var sawFinished bool
	for e := range events {
		if e.Kind == EventFinished {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Errorf("expected a finished event")
	}
}
