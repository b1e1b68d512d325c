package classify

import (
	"os"
	"path/filepath"
	"strings"
)

// Canonicalize converts an absolute or root-relative path into the
// repository's canonical form: forward-slash separators, relative to root,
// no "." or ".." components.
//
// Canonicalization must not require the path to currently exist: a deleted
// file's path still needs to normalize the same way it did while present, so
// that a delete event can be matched against the row the index holds for it.
// To do that without the path existing, Canonicalize walks up to the nearest
// ancestor directory that does exist, resolves that ancestor (following
// symlinks), and re-appends the original suffix textually rather than
// resolving it.
func Canonicalize(path, root string) string {
	if path == "" {
		return path
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	resolvedAbs, suffix := resolveNearestAncestor(abs)
	full := resolvedAbs
	if suffix != "" {
		full = filepath.Join(resolvedAbs, suffix)
	}

	rel, err := filepath.Rel(root, full)
	if err != nil {
		rel = full
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "./")
	return rel
}

// resolveNearestAncestor walks up from path until it finds a directory that
// exists on disk, resolving symlinks only on that existing portion. It
// returns the resolved ancestor and the (possibly multi-segment, possibly
// empty) suffix that does not exist, joined in OS-native form for
// re-joining.
func resolveNearestAncestor(path string) (ancestor string, suffix string) {
	var suffixParts []string
	cur := path

	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				resolved = cur
			}
			return resolved, filepath.Join(suffixParts...)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding an existing ancestor.
			return cur, filepath.Join(suffixParts...)
		}

		base := filepath.Base(cur)
		suffixParts = append([]string{base}, suffixParts...)
		cur = parent
	}
}
