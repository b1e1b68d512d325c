package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/standardbeagle/source-fast/internal/config"
)

func TestWatcherFiresOnChangeAfterDebounce(t *testing.T) {
	root := t.TempDir()

	cfg := config.Default(root)
	cfg.Index.WatchDebounceMs = 20

	var calls int32
	w, err := New(root, cfg, func() { atomic.AddInt32(&calls, 1) }, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if atomic.LoadInt32(&calls) == 0 {
		t.Errorf("expected onChange to fire at least once")
	}
}

func TestWatcherCoalescesBurstIntoOneCall(t *testing.T) {
	root := t.TempDir()

	cfg := config.Default(root)
	cfg.Index.WatchDebounceMs = 100

	var calls int32
	w, err := New(root, cfg, func() { atomic.AddInt32(&calls, 1) }, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\n"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(300 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 coalesced call, got %d", got)
	}
}
