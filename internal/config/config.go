// Package config loads and validates source-fast's configuration: indexing
// limits, worker pool sizing, and include/exclude globs. Defaults mirror the
// size and timing budgets named in the indexing design (S_probe, S_max,
// T_lock).
package config

import (
	"os"
	"runtime"
)

// DefaultMaxFileSize is S_max: files larger than this are treated as
// non-indexable regardless of content.
const DefaultMaxFileSize = 4 * 1024 * 1024

// DefaultProbeSize is S_probe: the classifier reads at most this many bytes
// to sniff a file's content when it must.
const DefaultProbeSize = 8 * 1024

// DefaultLockTimeoutMs is T_lock: how long a writer waits on the store's
// exclusive lock before failing with Busy.
const DefaultLockTimeoutMs = 5000

// DefaultMaxOpenFiles bounds concurrent file reads during query
// verification. Indexing reads are bounded by the worker count instead.
const DefaultMaxOpenFiles = 128

type Config struct {
	Version     int
	Project     Project
	Index       Index
	Performance Performance
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize      int64 // S_max
	ProbeSize        int64 // S_probe
	FollowSymlinks   bool
	RespectGitignore bool
	WatchMode        bool
	WatchDebounceMs  int
}

type Performance struct {
	Workers       int // bounded-fanout worker pool size, 0 = auto-detect
	MaxOpenFiles  int
	LockTimeoutMs int
}

// DenyList is the compiled-in set of globs the walker always excludes,
// independent of user configuration or VCS ignore rules.
var DenyList = []string{
	"**/.git/**",
	"**/.source_fast/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/*.orig",
	"**/*.bak",
}

// Load reads configuration for the project rooted at path, falling back to
// defaults when no .source_fast.kdl file is present.
func Load(path string) (*Config, error) {
	cfg, err := LoadKDL(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default(path)
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the zero-config defaults for a project rooted at root.
func Default(root string) *Config {
	if root == "" {
		if cwd, err := os.Getwd(); err == nil {
			root = cwd
		} else {
			root = "."
		}
	}

	return &Config{
		Version: 1,
		Project: Project{Root: root},
		Index: Index{
			MaxFileSize:      DefaultMaxFileSize,
			ProbeSize:        DefaultProbeSize,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  300,
		},
		Performance: Performance{
			Workers:       runtime.NumCPU(),
			MaxOpenFiles:  DefaultMaxOpenFiles,
			LockTimeoutMs: DefaultLockTimeoutMs,
		},
		Include: []string{},
		Exclude: []string{
			"**/node_modules/**",
			"**/vendor/**",
			"**/dist/**",
			"**/build/**",
			"**/target/**",
			"**/*.min.js",
			"**/*.min.css",
		},
	}
}
