package config

import (
	"testing"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

func TestValidateAndSetDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Project: Project{Root: dir}}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Index.MaxFileSize != DefaultMaxFileSize {
		t.Errorf("expected smart default max file size")
	}
	if cfg.Performance.Workers <= 0 {
		t.Errorf("expected smart default workers > 0")
	}
	if cfg.Include == nil || cfg.Exclude == nil {
		t.Errorf("expected non-nil include/exclude slices")
	}
}

func TestValidateRejectsMissingRoot(t *testing.T) {
	cfg := &Config{Project: Project{Root: "/does/not/exist/anywhere"}}
	err := NewValidator().ValidateAndSetDefaults(cfg)
	if err == nil {
		t.Fatalf("expected error for nonexistent root")
	}
	if !srcerrors.IsKind(err, srcerrors.KindConfig) {
		t.Errorf("expected KindConfig error, got %v", err)
	}
}

func TestValidateRejectsNegativeSizes(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Project: Project{Root: dir}, Index: Index{MaxFileSize: -1}}
	if err := NewValidator().ValidateAndSetDefaults(cfg); err == nil {
		t.Fatalf("expected error for negative max file size")
	}
}

func TestValidateRejectsProbeExceedingMax(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Project: Project{Root: dir},
		Index:   Index{MaxFileSize: 100, ProbeSize: 200},
	}
	if err := NewValidator().ValidateAndSetDefaults(cfg); err == nil {
		t.Fatalf("expected error when probe-size exceeds max-file-size")
	}
}
