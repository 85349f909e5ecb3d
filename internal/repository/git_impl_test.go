package repository

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) (string, *git.Repository) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFile(t, dir, repo, "test.txt", "test content", "Initial commit")
	return dir, repo
}

func commitFile(t *testing.T, dir string, repo *git.Repository, name, content, message string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	_, err = wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
	return hash
}

func checkout(t *testing.T, repo *git.Repository, branch string, create bool) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
	}))
}

func TestNewGitRepository(t *testing.T) {
	t.Run("Should open an existing repository", func(t *testing.T) {
		dir, _ := setupTestRepo(t)
		gitRepo, err := NewGitRepository(dir, "", nil)
		assert.NoError(t, err)
		assert.NotNil(t, gitRepo)
	})
	t.Run("Should return error for non-git directory", func(t *testing.T) {
		gitRepo, err := NewGitRepository(t.TempDir(), "", nil)
		assert.Error(t, err)
		assert.Nil(t, gitRepo)
	})
}

func TestGitRepository_Branches(t *testing.T) {
	ctx := context.Background()
	t.Run("Should create a branch at a revision and report it", func(t *testing.T) {
		_, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		current, err := gitRepo.CurrentBranch(ctx)
		require.NoError(t, err)
		require.NoError(t, gitRepo.CreateBranch(ctx, "experimental", current))
		exists, err := gitRepo.BranchExists(ctx, "experimental")
		require.NoError(t, err)
		assert.True(t, exists)
		head, err := gitRepo.HeadCommit(ctx)
		require.NoError(t, err)
		branchHead, err := gitRepo.BranchHead(ctx, "experimental")
		require.NoError(t, err)
		assert.Equal(t, head, branchHead)
	})
	t.Run("Should refuse to create an existing branch", func(t *testing.T) {
		_, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		require.NoError(t, gitRepo.CreateBranch(ctx, "experimental", "HEAD"))
		err := gitRepo.CreateBranch(ctx, "experimental", "HEAD")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})
	t.Run("Should delete a branch that is not checked out", func(t *testing.T) {
		_, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		require.NoError(t, gitRepo.CreateBranch(ctx, "experimental", "HEAD"))
		require.NoError(t, gitRepo.DeleteBranch(ctx, "experimental"))
		exists, err := gitRepo.BranchExists(ctx, "experimental")
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("Should refuse to delete the checked out branch", func(t *testing.T) {
		_, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		current, err := gitRepo.CurrentBranch(ctx)
		require.NoError(t, err)
		assert.Error(t, gitRepo.DeleteBranch(ctx, current))
	})
	t.Run("Should move a branch head", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		first, err := gitRepo.HeadCommit(ctx)
		require.NoError(t, err)
		require.NoError(t, gitRepo.CreateBranch(ctx, "experimental", "HEAD"))
		second := commitFile(t, dir, repo, "b.txt", "b", "second")
		require.NoError(t, gitRepo.SetBranchHead(ctx, "experimental", second.String()))
		head, err := gitRepo.BranchHead(ctx, "experimental")
		require.NoError(t, err)
		assert.Equal(t, second.String(), head)
		require.NoError(t, gitRepo.SetBranchHead(ctx, "experimental", first))
		head, err = gitRepo.BranchHead(ctx, "experimental")
		require.NoError(t, err)
		assert.Equal(t, first, head)
		assert.Error(t, gitRepo.SetBranchHead(ctx, "experimental", "not-a-hash"))
	})
}

func TestGitRepository_MergeBase(t *testing.T) {
	ctx := context.Background()
	t.Run("Should return the fork point of two branches", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		mainline, err := gitRepo.CurrentBranch(ctx)
		require.NoError(t, err)
		fork := commitFile(t, dir, repo, "shared.txt", "shared", "shared")
		checkout(t, repo, "feature", true)
		commitFile(t, dir, repo, "feature.txt", "feature", "feature")
		checkout(t, repo, mainline, false)
		commitFile(t, dir, repo, "main.txt", "main", "main")
		base, err := gitRepo.MergeBase(ctx, "feature", mainline)
		require.NoError(t, err)
		assert.Equal(t, fork.String(), base)
	})
	t.Run("Should resolve numeric branch names as branches, not hash prefixes", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		mainline, err := gitRepo.CurrentBranch(ctx)
		require.NoError(t, err)
		rootHead, err := gitRepo.HeadCommit(ctx)
		require.NoError(t, err)
		// grow mainline until some commit hash starts with four decimal digits
		var prBranch string
		for i := 0; i < 500 && prBranch == ""; i++ {
			hash := commitFile(t, dir, repo, "main.txt", fmt.Sprintf("main %d", i), fmt.Sprintf("main %d", i))
			if prefix := hash.String()[:4]; strings.Trim(prefix, "0123456789") == "" {
				prBranch = prefix
			}
		}
		require.NotEmpty(t, prBranch)
		require.NoError(t, gitRepo.CreateBranch(ctx, prBranch, rootHead))
		base, err := gitRepo.MergeBase(ctx, prBranch, mainline)
		require.NoError(t, err)
		assert.Equal(t, rootHead, base)
		base, err = gitRepo.MergeBase(ctx, "refs/heads/"+prBranch, "refs/heads/"+mainline)
		require.NoError(t, err)
		assert.Equal(t, rootHead, base)
		head, err := gitRepo.BranchHead(ctx, prBranch)
		require.NoError(t, err)
		assert.Equal(t, rootHead, head)
	})
	t.Run("Should fail for unknown revisions", func(t *testing.T) {
		_, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		_, err := gitRepo.MergeBase(ctx, "missing", "HEAD")
		assert.Error(t, err)
	})
}

func TestGitRepository_EnsureRemote(t *testing.T) {
	ctx := context.Background()
	t.Run("Should add and then repoint a remote", func(t *testing.T) {
		_, repo := setupTestRepo(t)
		gitRepo := newGitRepository(repo, "", nil)
		require.NoError(t, gitRepo.EnsureRemote(ctx, "fork", "https://github.com/alice/TypeScript.git"))
		require.NoError(t, gitRepo.EnsureRemote(ctx, "fork", "https://github.com/alice/TypeScript.git"))
		remote, err := repo.Remote("fork")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://github.com/alice/TypeScript.git"}, remote.Config().URLs)
		require.NoError(t, gitRepo.EnsureRemote(ctx, "fork", "https://github.com/bob/TypeScript.git"))
		remote, err = repo.Remote("fork")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://github.com/bob/TypeScript.git"}, remote.Config().URLs)
	})
}

func TestGitRepository_ConfigureUser(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestRepo(t)
	gitRepo := newGitRepository(repo, "", nil)
	require.NoError(t, gitRepo.ConfigureUser(ctx, "bot", "bot@example.com"))
	cfg, err := repo.Config()
	require.NoError(t, err)
	assert.Equal(t, "bot", cfg.User.Name)
	assert.Equal(t, "bot@example.com", cfg.User.Email)
}

func TestGitRepository_FetchAndPush(t *testing.T) {
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		if _, err := exec.LookPath("git"); err != nil {
			t.Skip("git binaries are required for the file transport")
		}
	}
	ctx := context.Background()
	remoteDir := t.TempDir()
	_, err := git.PlainInit(remoteDir, true)
	require.NoError(t, err)

	dir, repo := setupTestRepo(t)
	gitRepo := newGitRepository(repo, "", nil)
	require.NoError(t, gitRepo.EnsureRemote(ctx, "fork", remoteDir))
	require.NoError(t, gitRepo.CreateBranch(ctx, "42", "HEAD"))
	require.NoError(t, gitRepo.PushBranch(ctx, "fork", "42", true))

	cfg, err := repo.Config()
	require.NoError(t, err)
	require.Contains(t, cfg.Branches, "42")
	assert.Equal(t, "fork", cfg.Branches["42"].Remote)

	commitFile(t, dir, repo, "c.txt", "c", "third")
	head, err := gitRepo.HeadCommit(ctx)
	require.NoError(t, err)
	require.NoError(t, gitRepo.SetBranchHead(ctx, "42", head))
	require.NoError(t, gitRepo.PushBranch(ctx, "fork", "42", true))

	require.NoError(t, gitRepo.Fetch(ctx, "fork", "+refs/heads/42:refs/heads/fetched"))
	fetched, err := gitRepo.BranchHead(ctx, "fetched")
	require.NoError(t, err)
	assert.Equal(t, head, fetched)
}
