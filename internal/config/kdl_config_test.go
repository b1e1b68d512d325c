package config

import (
	"os"
	"testing"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1024", 1024, true},
		{"4mb", 4 * 1024 * 1024, true},
		{"8kb", 8 * 1024, true},
		{"1gb", 1024 * 1024 * 1024, true},
		{"not-a-size", 0, false},
	}
	for _, c := range cases {
		got, ok := parseSize(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("parseSize(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestLoadKDLNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config when no KDL file present")
	}
}

func TestLoadKDLExcludeList(t *testing.T) {
	dir := t.TempDir()
	body := `
exclude "vendor/**" "dist/**"
`
	if err := os.WriteFile(dir+"/"+configFileName, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadKDL(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Exclude) != 2 {
		t.Fatalf("expected 2 exclude entries, got %d: %v", len(cfg.Exclude), cfg.Exclude)
	}
}
