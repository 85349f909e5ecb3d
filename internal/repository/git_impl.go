package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

// gitRepository is the implementation of the GitRepository interface.
type gitRepository struct {
	repo   *git.Repository
	auth   transport.AuthMethod
	logger *zap.Logger
}

// NewGitRepository opens the repository at path. The token, when set, authenticates
// fetches and pushes over HTTPS.
func NewGitRepository(path, token string, logger *zap.Logger) (GitRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}
	return newGitRepository(repo, token, logger), nil
}

func newGitRepository(repo *git.Repository, token string, logger *zap.Logger) *gitRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gitRepository{repo: repo, auth: tokenAuth(token), logger: logger}
}

// tokenAuth returns basic auth for GitHub token authentication
func tokenAuth(token string) transport.AuthMethod {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	// Use x-access-token as username for GitHub token authentication
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}
}

// CurrentBranch returns the name of the checked out branch.
func (r *gitRepository) CurrentBranch(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash())
	}
	return head.Name().Short(), nil
}

// HeadCommit returns the SHA of the current HEAD commit.
func (r *gitRepository) HeadCommit(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// BranchExists reports whether a local branch exists.
func (r *gitRepository) BranchExists(_ context.Context, name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check branch %s: %w", name, err)
	}
	return true, nil
}

// BranchHead returns the commit a local branch points at.
func (r *gitRepository) BranchHead(_ context.Context, name string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return "", fmt.Errorf("failed to resolve branch %s: %w", name, err)
	}
	return ref.Hash().String(), nil
}

// CreateBranch creates a new branch at revision.
func (r *gitRepository) CreateBranch(_ context.Context, name, revision string) error {
	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(branchRef, false); err == nil {
		return fmt.Errorf("branch %s already exists", name)
	}
	hash, err := r.resolve(revision)
	if err != nil {
		return err
	}
	return r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash))
}

// SetBranchHead points an existing or missing local branch at hash.
func (r *gitRepository) SetBranchHead(_ context.Context, name, hash string) error {
	if !plumbing.IsHash(hash) {
		return fmt.Errorf("invalid commit hash: %s", hash)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(hash))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("failed to set branch %s to %s: %w", name, hash, err)
	}
	return nil
}

// DeleteBranch deletes a local branch and its tracking configuration.
func (r *gitRepository) DeleteBranch(ctx context.Context, name string) error {
	if current, err := r.CurrentBranch(ctx); err == nil && current == name {
		return fmt.Errorf("cannot delete branch %s: it is checked out", name)
	}
	if err := r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", name, err)
	}
	cfg, err := r.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	if _, ok := cfg.Branches[name]; ok {
		delete(cfg.Branches, name)
		if err := r.repo.Storer.SetConfig(cfg); err != nil {
			return fmt.Errorf("failed to remove tracking config for %s: %w", name, err)
		}
	}
	return nil
}

// EnsureRemote adds the remote, or repoints it when it exists with another URL.
func (r *gitRepository) EnsureRemote(_ context.Context, name, url string) error {
	remote, err := r.repo.Remote(name)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
	case err != nil:
		return fmt.Errorf("failed to get remote %s: %w", name, err)
	case slices.Equal(remote.Config().URLs, []string{url}):
		return nil
	default:
		r.logger.Info("replacing remote", zap.String("remote", name))
		if err := r.repo.DeleteRemote(name); err != nil {
			return fmt.Errorf("failed to delete remote %s: %w", name, err)
		}
	}
	if _, err := r.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	return nil
}

// Fetch fetches the given refspecs from remote.
func (r *gitRepository) Fetch(ctx context.Context, remote string, refSpecs ...string) error {
	specs := make([]config.RefSpec, 0, len(refSpecs))
	for _, s := range refSpecs {
		spec := config.RefSpec(s)
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("invalid refspec %s: %w", s, err)
		}
		specs = append(specs, spec)
	}
	r.logger.Debug("fetching", zap.String("remote", remote), zap.Strings("refspecs", refSpecs))
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		RefSpecs:   specs,
		Auth:       r.auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch %s from %s: %w", strings.Join(refSpecs, " "), remote, err)
	}
	return nil
}

// PushBranch pushes a branch to remote and records it as the upstream.
func (r *gitRepository) PushBranch(ctx context.Context, remote, branch string, force bool) error {
	spec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		spec = "+" + spec
	}
	r.logger.Debug("pushing", zap.String("remote", remote), zap.String("branch", branch), zap.Bool("force", force))
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(spec)},
		Auth:       r.auth,
		Force:      force,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push %s to %s: %w", branch, remote, err)
	}
	return r.setUpstream(remote, branch)
}

func (r *gitRepository) setUpstream(remote, branch string) error {
	cfg, err := r.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	cfg.Branches[branch] = &config.Branch{
		Name:   branch,
		Remote: remote,
		Merge:  plumbing.NewBranchReferenceName(branch),
	}
	if err := r.repo.Storer.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to set upstream for %s: %w", branch, err)
	}
	return nil
}

// MergeBase returns the best common ancestor of two revisions.
func (r *gitRepository) MergeBase(_ context.Context, a, b string) (string, error) {
	first, err := r.commitAt(a)
	if err != nil {
		return "", err
	}
	second, err := r.commitAt(b)
	if err != nil {
		return "", err
	}
	bases, err := first.MergeBase(second)
	if err != nil {
		return "", fmt.Errorf("failed to compute merge base of %s and %s: %w", a, b, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("%s and %s have no common ancestor", a, b)
	}
	return bases[0].Hash.String(), nil
}

func (r *gitRepository) commitAt(revision string) (*object.Commit, error) {
	hash, err := r.resolve(revision)
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", revision, err)
	}
	return commit, nil
}

// ConfigureUser sets the git user configuration.
func (r *gitRepository) ConfigureUser(_ context.Context, name, email string) error {
	cfg, err := r.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	cfg.User.Name = name
	cfg.User.Email = email
	return r.repo.Storer.SetConfig(cfg)
}

// resolve looks revision up as a full ref name, then as a local branch, and only
// then as a general revision. PR branches are named by number, and go-git's
// ResolveRevision would read "7185" as an abbreviated commit hash first.
func (r *gitRepository) resolve(revision string) (plumbing.Hash, error) {
	candidates := []plumbing.ReferenceName{plumbing.NewBranchReferenceName(revision)}
	if strings.HasPrefix(revision, "refs/") {
		candidates = []plumbing.ReferenceName{plumbing.ReferenceName(revision)}
	}
	for _, name := range candidates {
		if ref, err := r.repo.Reference(name, true); err == nil {
			return ref.Hash(), nil
		}
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve revision %s: %w", revision, err)
	}
	return *hash, nil
}
