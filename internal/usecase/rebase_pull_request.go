package usecase

import (
	"context"
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"go.uber.org/zap"
)

// RebaseResult records the local branch head before the rebase so it can be restored.
type RebaseResult struct {
	Branch       string
	PreviousHead string
	Head         string
}

// RebasePullRequestUseCase fetches a PR head into a local branch and rebases it onto mainline.
type RebasePullRequestUseCase struct {
	GitRepo repository.GitRepository
	GitCLI  service.GitCLIService
	Logger  *zap.Logger
}

// Execute runs the use case.
func (uc *RebasePullRequestUseCase) Execute(
	ctx context.Context,
	pr domain.PRNumber,
	originRemote, mainline string,
) (*RebaseResult, error) {
	branch := pr.BranchName()
	result := &RebaseResult{Branch: branch}
	exists, err := uc.GitRepo.BranchExists(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to check branch %s: %w", branch, err)
	}
	if exists {
		if result.PreviousHead, err = uc.GitRepo.BranchHead(ctx, branch); err != nil {
			return nil, err
		}
	}
	spec := fmt.Sprintf("+%s:refs/heads/%s", pr.PullHeadRef(), branch)
	if err := uc.GitRepo.Fetch(ctx, originRemote, spec); err != nil {
		return nil, fmt.Errorf("failed to fetch PR %d: %w", pr, err)
	}
	if err := uc.GitCLI.Checkout(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	if err := uc.GitCLI.Rebase(ctx, mainline); err != nil {
		uc.Logger.Warn("rebase failed, aborting",
			zap.Stringer("pr", pr),
			zap.String("onto", mainline),
			zap.Error(err))
		if abortErr := uc.GitCLI.AbortRebase(ctx); abortErr != nil {
			uc.Logger.Error("failed to abort rebase", zap.Error(abortErr))
		}
		uc.restoreBranch(ctx, result, mainline)
		return nil, domain.NewMainlineConflict(pr, mainline)
	}
	if result.Head, err = uc.GitRepo.HeadCommit(ctx); err != nil {
		return nil, err
	}
	uc.Logger.Info("rebased pull request",
		zap.Stringer("pr", pr),
		zap.String("onto", mainline),
		zap.String("head", result.Head))
	return result, nil
}

// restoreBranch undoes the forced fetch of a PR whose rebase failed. The failed
// step is never compensated, so the branch is put back here.
func (uc *RebasePullRequestUseCase) restoreBranch(ctx context.Context, result *RebaseResult, mainline string) {
	if err := uc.GitCLI.Checkout(ctx, mainline); err != nil {
		uc.Logger.Error("failed to leave branch after rebase failure",
			zap.String("branch", result.Branch), zap.Error(err))
		return
	}
	if result.PreviousHead == "" {
		if err := uc.GitRepo.DeleteBranch(ctx, result.Branch); err != nil {
			uc.Logger.Error("failed to delete fetched branch", zap.String("branch", result.Branch), zap.Error(err))
		}
		return
	}
	if err := uc.GitRepo.SetBranchHead(ctx, result.Branch, result.PreviousHead); err != nil {
		uc.Logger.Error("failed to restore branch",
			zap.String("branch", result.Branch),
			zap.String("head", result.PreviousHead),
			zap.Error(err))
	}
}
