package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// makeRepo creates a local repository with two commits: the first adds
// README.md and docs/index.rst, the second modifies docs/index.rst and
// adds src/lib.rs. Returns the repo path and both commit hashes.
func makeRepo(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	write := func(rel, content string) {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
		_, err := wt.Add(rel)
		require.NoError(t, err)
	}
	commit := func(msg string) string {
		hash, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com"},
		})
		require.NoError(t, err)
		return hash.String()
	}

	write("README.md", "readme")
	write("docs/index.rst", "v1")
	first := commit("initial")

	write("docs/index.rst", "v2")
	write("src/lib.rs", "pub fn f() {}")
	second := commit("update docs and src")

	return dir, first, second
}

func TestChangedPathsBetweenCommits(t *testing.T) {
	dir, first, second := makeRepo(t)

	paths, err := ChangedPaths(dir, first, second)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"docs/index.rst", "src/lib.rs"}, paths)
}

func TestChangedPathsFirstPushReturnsAllPaths(t *testing.T) {
	dir, _, second := makeRepo(t)

	paths, err := ChangedPaths(dir, "", second)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"README.md", "docs/index.rst", "src/lib.rs"}, paths)
}

func TestChangedPathsUnknownCommit(t *testing.T) {
	dir, _, second := makeRepo(t)

	_, err := ChangedPaths(dir, "0123456789abcdef0123456789abcdef01234567", second)
	require.Error(t, err)
}

func TestCheckoutLocalRepository(t *testing.T) {
	src, _, second := makeRepo(t)

	ws := t.TempDir()
	client := NewClient(ws)

	path, err := client.Checkout(context.Background(), src, "refs/heads/master", "checkout")
	require.NoError(t, err)

	head, err := client.Head(path)
	require.NoError(t, err)
	require.Equal(t, second, head)

	_, err = os.Stat(filepath.Join(path, "docs", "index.rst"))
	require.NoError(t, err)
}
