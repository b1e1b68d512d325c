package config

import (
	"fmt"
	"os"
	"runtime"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

// Validator validates configuration and fills in defaults for anything the
// caller left unset.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates cfg in place, returning a typed config
// error on the first problem found.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return srcerrors.New(srcerrors.KindConfig, "project", err)
	}
	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return srcerrors.New(srcerrors.KindConfig, "index", err)
	}
	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return srcerrors.New(srcerrors.KindConfig, "performance", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(p *Project) error {
	if p.Root == "" {
		return fmt.Errorf("project root must not be empty")
	}
	info, err := os.Stat(p.Root)
	if err != nil {
		return fmt.Errorf("project root %q: %w", p.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %q is not a directory", p.Root)
	}
	return nil
}

func (v *Validator) validateIndexConfig(idx *Index) error {
	if idx.MaxFileSize < 0 {
		return fmt.Errorf("max-file-size must not be negative")
	}
	if idx.ProbeSize < 0 {
		return fmt.Errorf("probe-size must not be negative")
	}
	if idx.ProbeSize > 0 && idx.MaxFileSize > 0 && idx.ProbeSize > idx.MaxFileSize {
		return fmt.Errorf("probe-size must not exceed max-file-size")
	}
	if idx.WatchDebounceMs < 0 {
		return fmt.Errorf("watch-debounce-ms must not be negative")
	}
	return nil
}

func (v *Validator) validatePerformanceConfig(p *Performance) error {
	if p.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if p.MaxOpenFiles < 0 {
		return fmt.Errorf("max-open-files must not be negative")
	}
	if p.LockTimeoutMs < 0 {
		return fmt.Errorf("lock-timeout-ms must not be negative")
	}
	return nil
}

// setSmartDefaults fills in zero-valued fields a caller may have left unset
// (e.g. after a partial KDL document), without overriding anything explicit.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Index.MaxFileSize == 0 {
		cfg.Index.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Index.ProbeSize == 0 {
		cfg.Index.ProbeSize = DefaultProbeSize
	}
	if cfg.Performance.Workers == 0 {
		cfg.Performance.Workers = runtime.NumCPU()
	}
	if cfg.Performance.MaxOpenFiles == 0 {
		cfg.Performance.MaxOpenFiles = DefaultMaxOpenFiles
	}
	if cfg.Performance.LockTimeoutMs == 0 {
		cfg.Performance.LockTimeoutMs = DefaultLockTimeoutMs
	}
	if cfg.Include == nil {
		cfg.Include = []string{}
	}
	if cfg.Exclude == nil {
		cfg.Exclude = []string{}
	}
}

// ValidateConfig is a package-level convenience wrapper for callers that
// don't need a standalone Validator instance.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
