package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v74/github"
	"github.com/raffihsieh/update-experimental/internal/config"
	"github.com/raffihsieh/update-experimental/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrPullRequestNotFound is returned when GitHub has no PR with the requested number.
var ErrPullRequestNotFound = errors.New("pull request not found")

// githubRepository is the implementation of the GithubRepository interface.
type githubRepository struct {
	client *github.Client
	owner  string
	repo   string
	logger *zap.Logger
}

// NewGithubRepository creates a new GithubRepository with validation.
func NewGithubRepository(token, owner, repo string, logger *zap.Logger) (GithubRepository, error) {
	// Validate token format using the consolidated validator from config package
	if err := config.ValidateGitHubToken(token); err != nil {
		return nil, fmt.Errorf("invalid GitHub token: %w", err)
	}
	// Validate owner and repo names using the consolidated validator
	if err := config.ValidateGitHubOwnerRepo(owner, repo); err != nil {
		return nil, fmt.Errorf("invalid repository configuration: %w", err)
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: strings.TrimSpace(token)},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	return newGithubRepository(github.NewClient(tc), owner, repo, logger), nil
}

func newGithubRepository(client *github.Client, owner, repo string, logger *zap.Logger) *githubRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &githubRepository{client: client, owner: owner, repo: repo, logger: logger}
}

// GetPullRequest fetches the PR; Rebaseable stays nil until GitHub has computed it.
func (r *githubRepository) GetPullRequest(ctx context.Context, number domain.PRNumber) (*domain.PullRequest, error) {
	pr, resp, err := r.client.PullRequests.Get(ctx, r.owner, r.repo, int(number))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: #%d in %s/%s", ErrPullRequestNotFound, int(number), r.owner, r.repo)
		}
		return nil, fmt.Errorf("failed to get PR #%d: %w", int(number), err)
	}
	r.logger.Debug("fetched pull request",
		zap.Int("pr", int(number)),
		zap.String("state", pr.GetState()),
		zap.Any("rebaseable", pr.Rebaseable))
	return &domain.PullRequest{
		Number:     number,
		HeadRef:    pr.GetHead().GetRef(),
		State:      pr.GetState(),
		Rebaseable: pr.Rebaseable,
	}, nil
}

// AddComment implementation
func (r *githubRepository) AddComment(ctx context.Context, number domain.PRNumber, body string) error {
	comment := &github.IssueComment{
		Body: github.Ptr(body),
	}
	_, _, err := r.client.Issues.CreateComment(ctx, r.owner, r.repo, int(number), comment)
	if err != nil {
		return fmt.Errorf("failed to add comment to PR #%d: %w", int(number), err)
	}
	return nil
}
