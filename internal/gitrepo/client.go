// Package gitrepo checks out the repository at a triggering ref and
// computes the change set between two commits.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Client handles git operations inside a workspace directory.
type Client struct {
	workspaceDir string
}

// NewClient creates a git client rooted at the given workspace directory.
func NewClient(workspaceDir string) *Client { return &Client{workspaceDir: workspaceDir} }

// Checkout clones the repository and checks out the given ref. The
// checkout lands in a fresh subdirectory of the workspace named after
// dirName; any previous contents are removed first.
func (c *Client) Checkout(ctx context.Context, url, ref, dirName string) (string, error) {
	repoPath := filepath.Join(c.workspaceDir, dirName)
	slog.Debug("Checking out repository", logfields.URL(url), logfields.Ref(ref), logfields.Path(repoPath))

	if err := os.RemoveAll(repoPath); err != nil {
		return "", fmt.Errorf("failed to remove existing checkout: %w", err)
	}

	cloneOptions := &git.CloneOptions{URL: url}
	if ref != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName(ref)
		cloneOptions.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, repoPath, false, cloneOptions); err != nil {
		return "", fmt.Errorf("failed to clone %s at %s: %w", url, ref, err)
	}

	return repoPath, nil
}

// Head returns the commit hash the checkout currently points at.
func (c *Client) Head(repoPath string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// ChangedPaths returns the set of file paths touched between two
// commits of an already-checked-out repository. When before is empty
// (first push to a ref) every path in the after commit is returned.
func ChangedPaths(repoPath, before, after string) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	afterCommit, err := commitByHash(repo, after)
	if err != nil {
		return nil, err
	}

	if before == "" || before == plumbing.ZeroHash.String() {
		return allPaths(afterCommit)
	}

	beforeCommit, err := commitByHash(repo, before)
	if err != nil {
		return nil, err
	}

	patch, err := beforeCommit.Patch(afterCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", before, after, err)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		for _, f := range []interface{ Path() string }{from, to} {
			if f == nil {
				continue
			}
			if _, ok := seen[f.Path()]; ok {
				continue
			}
			seen[f.Path()] = struct{}{}
			paths = append(paths, f.Path())
		}
	}
	return paths, nil
}

func commitByHash(repo *git.Repository, hash string) (*object.Commit, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve commit %s: %w", hash, err)
	}
	return commit, nil
}

func allPaths(commit *object.Commit) ([]string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read commit tree: %w", err)
	}
	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk commit tree: %w", err)
	}
	return paths, nil
}
