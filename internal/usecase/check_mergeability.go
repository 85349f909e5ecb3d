package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// DefaultMergeabilityDelay is the first wait while GitHub computes rebaseability.
const DefaultMergeabilityDelay = 2 * time.Second

// MergeabilityInput identifies the PR being checked and how a conflict is reported.
type MergeabilityInput struct {
	PR       domain.PRNumber
	Trigger  bool
	Mainline string
	DryRun   bool
}

// CheckMergeabilityUseCase decides whether an enlisted PR can be rebased onto mainline.
type CheckMergeabilityUseCase struct {
	GithubRepo repository.GithubRepository
	Logger     *zap.Logger
	Attempts   int
	Delay      time.Duration
}

// Execute returns true when the PR is rebaseable. A non-rebaseable trigger PR
// gets a comment and a mainline ConflictError; any other non-rebaseable PR
// returns false with no error.
func (uc *CheckMergeabilityUseCase) Execute(ctx context.Context, in MergeabilityInput) (bool, error) {
	pr, err := uc.fetch(ctx, in.PR)
	if in.DryRun && errors.Is(err, repository.ErrGithubTokenRequired) {
		uc.Logger.Warn("dry run without github token: relying on the local rebase", zap.Stringer("pr", in.PR))
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if pr.IsRebaseable() {
		uc.Logger.Debug("pull request is rebaseable", zap.Stringer("pr", in.PR))
		return true, nil
	}
	if !in.Trigger {
		uc.Logger.Warn("enlisted pull request conflicts with mainline, giving up",
			zap.Stringer("pr", in.PR),
			zap.String("mainline", in.Mainline))
		return false, nil
	}
	body := ConflictComment(in.Mainline)
	if in.DryRun {
		uc.Logger.Info("dry run: skipping conflict comment", zap.Stringer("pr", in.PR))
	} else if err := uc.GithubRepo.AddComment(ctx, in.PR, body); err != nil {
		return false, fmt.Errorf("failed to comment on PR %d: %w", in.PR, err)
	}
	return false, domain.NewMainlineConflict(in.PR, in.Mainline)
}

func (uc *CheckMergeabilityUseCase) fetch(ctx context.Context, number domain.PRNumber) (*domain.PullRequest, error) {
	attempts := uc.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := uc.Delay
	if delay <= 0 {
		delay = DefaultMergeabilityDelay
	}
	var pr *domain.PullRequest
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		current, err := uc.GithubRepo.GetPullRequest(ctx, number)
		if err != nil {
			return err
		}
		pr = current
		if !current.MergeabilityKnown() {
			uc.Logger.Debug("mergeability not computed yet", zap.Stringer("pr", number))
			return retry.RetryableError(errMergeabilityPending)
		}
		return nil
	})
	if errors.Is(err, errMergeabilityPending) {
		return nil, fmt.Errorf("%w: PR %d after %d attempts", domain.ErrMergeabilityUnknown, number, attempts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get PR %d: %w", number, err)
	}
	return pr, nil
}

var errMergeabilityPending = errors.New("mergeability pending")

// ConflictComment is posted on the trigger PR when it cannot be rebased onto mainline.
func ConflictComment(mainline string) string {
	return fmt.Sprintf("This PR is configured as an experiment, and currently has merge conflicts with %s - "+
		"please rebase onto %s and fix the conflicts.", mainline, mainline)
}
