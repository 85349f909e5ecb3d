package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/domain"
)

var ErrGithubTokenRequired = errors.New("github token is required for GitHub operations")

type githubNoopRepository struct {
	owner string
	repo  string
}

func NewGithubNoopRepository(owner, repo string) GithubRepository {
	return &githubNoopRepository{owner: owner, repo: repo}
}

func (r *githubNoopRepository) GetPullRequest(_ context.Context, _ domain.PRNumber) (*domain.PullRequest, error) {
	return nil, r.operationError("query pull request")
}

func (r *githubNoopRepository) AddComment(_ context.Context, _ domain.PRNumber, _ string) error {
	return r.operationError("add comment")
}

func (r *githubNoopRepository) operationError(action string) error {
	return fmt.Errorf("%w: unable to %s for %s/%s", ErrGithubTokenRequired, action, r.owner, r.repo)
}
