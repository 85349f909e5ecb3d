package repository

import (
	"context"

	"github.com/raffihsieh/update-experimental/internal/domain"
)

// GithubRepository defines the interface for GitHub API operations.

type GithubRepository interface {
	// GetPullRequest returns the PR with its rebaseability as computed by GitHub
	GetPullRequest(ctx context.Context, number domain.PRNumber) (*domain.PullRequest, error)
	// AddComment adds a comment to a PR/issue
	AddComment(ctx context.Context, number domain.PRNumber, body string) error
}
