// Package vcs is the Git collaborator the planner consults to decide
// between an incremental, diff-driven reindex and a full-tree rescan. Any
// failure to resolve the repository, its HEAD, or a stored commit is
// reported as VcsUnavailable so callers can fall back to a full scan rather
// than fail outright.
package vcs

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

// ChangeKind classifies one path's movement between two commits.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Deleted
	Renamed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Change is one path-level difference between two trees.
type Change struct {
	Kind    ChangeKind
	Path    string
	OldPath string // set only for Renamed
}

// Repo wraps a single git.Repository rooted at a working tree.
type Repo struct {
	repo *git.Repository
	root string
}

// Open opens the repository rooted at root. It returns VcsUnavailable (not a
// raw error) when root is not inside a git working tree, so callers can
// treat the absence of git the same way as any other reason to fall back to
// a full scan.
func Open(root string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "open", err).WithPath(root)
	}
	return &Repo{repo: r, root: root}, nil
}

// Head returns the current commit hash as a hex string. An unborn HEAD (a
// freshly initialized repository with no commits) is reported as
// VcsUnavailable since there is nothing to diff against.
func (r *Repo) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", srcerrors.New(srcerrors.KindVcsUnavailable, "head", err)
	}
	return ref.Hash().String(), nil
}

// IsAncestor reports whether the commit named by ancestorHex is an ancestor
// of (or equal to) the commit named by descendantHex.
func (r *Repo) IsAncestor(ancestorHex, descendantHex string) (bool, error) {
	ancestor, err := r.commit(ancestorHex)
	if err != nil {
		return false, err
	}
	descendant, err := r.commit(descendantHex)
	if err != nil {
		return false, err
	}
	if ancestor.Hash == descendant.Hash {
		return true, nil
	}
	ok, err := ancestor.IsAncestor(descendant)
	if err != nil {
		return false, srcerrors.New(srcerrors.KindVcsUnavailable, "is_ancestor", err)
	}
	return ok, nil
}

// Diff computes the path-level changes between two commits, used to drive
// an incremental reindex without ever reading every file in the tree.
func (r *Repo) Diff(fromHex, toHex string) ([]Change, error) {
	from, err := r.commit(fromHex)
	if err != nil {
		return nil, err
	}
	to, err := r.commit(toHex)
	if err != nil {
		return nil, err
	}

	fromTree, err := from.Tree()
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "from_tree", err)
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "to_tree", err)
	}

	treeChanges, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "diff", err)
	}

	changes := make([]Change, 0, len(treeChanges))
	for _, tc := range treeChanges {
		action, err := tc.Action()
		if err != nil {
			return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "diff_action", err)
		}
		switch action {
		case object.Insert:
			changes = append(changes, Change{Kind: Added, Path: tc.To.Name})
		case object.Delete:
			changes = append(changes, Change{Kind: Deleted, Path: tc.From.Name})
		case object.Modify:
			changes = append(changes, Change{Kind: Modified, Path: tc.To.Name})
		}
	}

	return coalesceRenames(changes), nil
}

// coalesceRenames merges an Added+Deleted pair that share the same base name
// (a rename go-git reports as separate tree entries) into one Renamed
// change, per the planner's Delete(old)+ReIndex(new) handling. Content is
// not compared.
func coalesceRenames(changes []Change) []Change {
	var added, deleted, rest []Change
	for _, c := range changes {
		switch c.Kind {
		case Added:
			added = append(added, c)
		case Deleted:
			deleted = append(deleted, c)
		default:
			rest = append(rest, c)
		}
	}

	usedDeleted := make(map[int]bool, len(deleted))
	for _, a := range added {
		matched := -1
		for i, d := range deleted {
			if usedDeleted[i] {
				continue
			}
			if filepath.Base(d.Path) == filepath.Base(a.Path) {
				matched = i
				break
			}
		}
		if matched >= 0 {
			usedDeleted[matched] = true
			rest = append(rest, Change{Kind: Renamed, Path: a.Path, OldPath: deleted[matched].Path})
			continue
		}
		rest = append(rest, a)
	}
	for i, d := range deleted {
		if !usedDeleted[i] {
			rest = append(rest, d)
		}
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].Path < rest[j].Path })
	return rest
}

// Status reports the dirty overlay atop HEAD: paths with working-tree edits,
// staged-but-uncommitted changes, or untracked files not covered by the
// committed tree diff.
func (r *Repo) Status() ([]Change, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "worktree", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "status", err)
	}

	var changes []Change
	for path, fs := range st {
		kind, ok := statusKind(fs)
		if !ok {
			continue
		}
		changes = append(changes, Change{Kind: kind, Path: path})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func statusKind(fs *git.FileStatus) (ChangeKind, bool) {
	code := fs.Worktree
	if code == git.Unmodified {
		code = fs.Staging
	}
	switch code {
	case git.Untracked, git.Added:
		return Added, true
	case git.Modified:
		return Modified, true
	case git.Deleted:
		return Deleted, true
	case git.Renamed:
		return Renamed, true
	default:
		return 0, false
	}
}

// LsFiles lists every path tracked at the given commit.
func (r *Repo) LsFiles(commitHex string) ([]string, error) {
	c, err := r.commit(commitHex)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "tree", err)
	}

	var paths []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if !entry.Mode.IsFile() {
			continue
		}
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths, nil
}

// IsIgnored reports whether path is excluded by the repository's gitignore
// rules, consulted by the fallback scan so it doesn't re-walk build output
// git itself would never track.
func (r *Repo) IsIgnored(path string) bool {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false
	}
	patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil)
	if err != nil || len(patterns) == 0 {
		return false
	}
	matcher := gitignore.NewMatcher(patterns)
	return matcher.Match(strings.Split(filepath.ToSlash(path), "/"), false)
}

func (r *Repo) commit(hex string) (*object.Commit, error) {
	hash := plumbing.NewHash(hex)
	c, err := r.repo.Commit(hash)
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindVcsUnavailable, "commit_object", err).WithPath(hex)
	}
	return c, nil
}
