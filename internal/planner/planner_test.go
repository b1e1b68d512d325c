package planner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/standardbeagle/source-fast/internal/config"
	"github.com/standardbeagle/source-fast/internal/store"
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

func newTestPlanner(t *testing.T, root string, cfg *config.Config) (*Planner, *store.Store) {
	t.Helper()
	st, err := store.Open(root, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if cfg == nil {
		cfg = config.Default(root)
	}
	return New(cfg, st, root, nil), st
}

func TestPlanFullScanNoVCS(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package main\n")
	writeFile(t, root, "src/b.go", "package main\n")

	p, _ := newTestPlanner(t, root, nil)

	plan, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != ModeFullScan {
		t.Fatalf("expected full scan mode, got %v", plan.Mode)
	}

	paths := make(map[string]ActionKind)
	for _, a := range plan.Actions {
		paths[a.Path] = a.Kind
	}
	if paths["src/a.go"] != ActionReIndex || paths["src/b.go"] != ActionReIndex {
		t.Errorf("expected both files reindexed, got %+v", plan.Actions)
	}
}

func TestPlanFullScanSkipsIndexDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package main\n")

	p, _ := newTestPlanner(t, root, nil)

	plan, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, a := range plan.Actions {
		if strings.HasPrefix(a.Path, store.DirName+"/") {
			t.Errorf("expected %s to be skipped under %s", a.Path, store.DirName)
		}
	}
}

func TestPlanFullScanReconcilesDeletedPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package main\n")

	p, st := newTestPlanner(t, root, nil)
	ctx := context.Background()

	txn, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := txn.UpsertFile("src/stale.go", 1, 1, 1, nil); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	plan, err := p.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	paths := make(map[string]ActionKind)
	for _, a := range plan.Actions {
		paths[a.Path] = a.Kind
	}
	if paths["src/stale.go"] != ActionDelete {
		t.Errorf("expected src/stale.go to be deleted, got %+v", plan.Actions)
	}
	if paths["src/a.go"] != ActionReIndex {
		t.Errorf("expected src/a.go to be reindexed, got %+v", plan.Actions)
	}
}

func TestPlanExcludesDenyListAndConfigExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package main\n")
	writeFile(t, root, "vendor/lib.go", "package lib\n")
	writeFile(t, root, "build.bak", "junk\n")

	cfg := config.Default(root)
	cfg.Exclude = append(cfg.Exclude, "vendor/**")

	p, _ := newTestPlanner(t, root, cfg)
	plan, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for _, a := range plan.Actions {
		if a.Path == "vendor/lib.go" || a.Path == "build.bak" {
			t.Errorf("expected %s to be excluded, got action %+v", a.Path, a)
		}
	}
}

func TestPlanFullScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	writeFile(t, root, "src/a.go", "package main\n")
	writeFile(t, root, "tmp_data/secret.txt", "junk\n")
	writeFile(t, root, ".gitignore", "tmp_data/\n")

	// No commits yet, so HEAD is unborn and Plan falls back to a full scan;
	// the gitignore rule still has to be honored on that path.
	p, _ := newTestPlanner(t, root, nil)

	plan, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Mode != ModeFullScan {
		t.Fatalf("expected full scan mode, got %v", plan.Mode)
	}

	paths := make(map[string]ActionKind)
	for _, a := range plan.Actions {
		paths[a.Path] = a.Kind
	}
	if _, ok := paths["tmp_data/secret.txt"]; ok {
		t.Errorf("expected tmp_data/secret.txt to be excluded by .gitignore, got actions %+v", plan.Actions)
	}
	if paths["src/a.go"] != ActionReIndex {
		t.Errorf("expected src/a.go to be reindexed, got %+v", plan.Actions)
	}
}

func TestPlanFullScanIgnoresGitignoreWhenDisabled(t *testing.T) {
	root := t.TempDir()
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	writeFile(t, root, "tmp_data/secret.txt", "junk\n")
	writeFile(t, root, ".gitignore", "tmp_data/\n")

	cfg := config.Default(root)
	cfg.Index.RespectGitignore = false

	p, _ := newTestPlanner(t, root, cfg)
	plan, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	paths := make(map[string]ActionKind)
	for _, a := range plan.Actions {
		paths[a.Path] = a.Kind
	}
	if paths["tmp_data/secret.txt"] != ActionReIndex {
		t.Errorf("expected tmp_data/secret.txt to be reindexed with RespectGitignore disabled, got %+v", plan.Actions)
	}
}
