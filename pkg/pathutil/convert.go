// Package pathutil provides utilities for converting between absolute and
// canonical repository-relative path representations.
//
// Architecture Pattern:
// source-fast stores canonical, repository-relative, forward-slash paths in
// the index. The Text Classifier (internal/classify) is the authority on
// what "canonical" means, including the ancestor-resolution trick that lets
// a path canonicalize consistently even after the file it names is deleted;
// ToCanonical exists here only as the convenient entry point for callers
// that already import pathutil for ToAbsolute, and it delegates to the
// classifier rather than keeping its own copy of that logic.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/source-fast/internal/classify"
)

// ToCanonical converts an absolute or OS-native path into the repository's
// canonical form: forward-slash separators, relative to root, no leading
// "./". It does not require the path to exist on disk; deleted paths still
// canonicalize identically to when they existed, following
// classify.Canonicalize's ancestor-resolution rule.
func ToCanonical(path, root string) string {
	return classify.Canonicalize(path, root)
}

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or the path is already
// relative.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/other/location/file.go", "/home/user/project") → "/other/location/file.go" (outside root)
//   - ToRelative("src/main.go", "/home/user/project") → "src/main.go" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}

	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		// Conversion failed (e.g. different drives on Windows) - return absolute.
		return absPath
	}

	// A leading ".." means the file is outside root; the absolute form is clearer.
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}

	return relPath
}

// ToAbsolute resolves a canonical repository-relative path back to an
// absolute filesystem path under root. It does not require the path to exist.
func ToAbsolute(relPath, root string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(root, filepath.FromSlash(relPath))
}
