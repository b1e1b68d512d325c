package vcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func commitAll(t *testing.T, wt *git.Worktree, message string) string {
	t.Helper()
	_, err := wt.Add(".")
	require.NoError(t, err)
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestDiffDetectsAddedModifiedDeleted(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package main\n")
	writeFile(t, root, "b.go", "package main\nfunc b() {}\n")
	first := commitAll(t, wt, "initial")

	writeFile(t, root, "a.go", "package main\nfunc a() {}\n")
	writeFile(t, root, "c.go", "package main\nfunc c() {}\n")
	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	second := commitAll(t, wt, "second")

	v, err := Open(root)
	require.NoError(t, err)

	changes, err := v.Diff(first, second)
	require.NoError(t, err)

	byPath := make(map[string]ChangeKind)
	for _, c := range changes {
		byPath[c.Path] = c.Kind
	}
	assert.Equal(t, Modified, byPath["a.go"])
	assert.Equal(t, Added, byPath["c.go"])
	assert.Equal(t, Deleted, byPath["b.go"])
}

func TestIsAncestor(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package main\n")
	first := commitAll(t, wt, "initial")

	writeFile(t, root, "a.go", "package main\nfunc a() {}\n")
	second := commitAll(t, wt, "second")

	v, err := Open(root)
	require.NoError(t, err)

	ok, err := v.IsAncestor(first, second)
	require.NoError(t, err)
	assert.True(t, ok, "expected first commit to be an ancestor of second")

	ok, err = v.IsAncestor(second, first)
	require.NoError(t, err)
	assert.False(t, ok, "expected second commit to not be an ancestor of first")
}

func TestHeadAndLsFiles(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, root, "src/a.go", "package main\n")
	writeFile(t, root, "src/b.go", "package main\n")
	commitAll(t, wt, "initial")

	v, err := Open(root)
	require.NoError(t, err)

	head, err := v.Head()
	require.NoError(t, err)
	assert.NotEmpty(t, head)

	paths, err := v.LsFiles(head)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestOpenNonRepoReturnsVcsUnavailable(t *testing.T) {
	root := t.TempDir()
	_, err := Open(root)
	assert.Error(t, err)
	assert.True(t, srcerrors.IsKind(err, srcerrors.KindVcsUnavailable), "expected VcsUnavailable, got %v", err)
}
