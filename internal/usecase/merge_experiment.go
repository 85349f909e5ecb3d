package usecase

import (
	"context"
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"go.uber.org/zap"
)

// MergeExperimentUseCase merges one rebased PR branch into the experimental branch.
type MergeExperimentUseCase struct {
	GitRepo repository.GitRepository
	GitCLI  service.GitCLIService
	Logger  *zap.Logger
}

// Execute simulates the merge first and only merges when no conflict is reported.
// Conflicts here are between experiments, since every branch rebased cleanly onto mainline.
func (uc *MergeExperimentUseCase) Execute(ctx context.Context, pr domain.PRNumber, experimental string) error {
	branch := pr.BranchRef()
	target := domain.BranchRef(experimental)
	base, err := uc.GitRepo.MergeBase(ctx, branch, target)
	if err != nil {
		return fmt.Errorf("failed to find merge base of %s and %s: %w", branch, target, err)
	}
	conflict, err := uc.GitCLI.SimulateMerge(ctx, base, branch, target)
	if err != nil {
		return fmt.Errorf("failed to simulate merge of %s: %w", branch, err)
	}
	if conflict {
		uc.Logger.Warn("merge simulation reported conflicts", zap.Stringer("pr", pr))
		return domain.NewExperimentConflict(pr)
	}
	if err := uc.GitCLI.MergeNoFF(ctx, branch); err != nil {
		uc.Logger.Warn("merge failed after a clean simulation",
			zap.Stringer("pr", pr),
			zap.String("into", experimental),
			zap.Error(err))
		if abortErr := uc.GitCLI.AbortMerge(ctx); abortErr != nil {
			uc.Logger.Error("failed to abort merge", zap.Error(abortErr))
		}
		return domain.NewExperimentConflict(pr)
	}
	uc.Logger.Info("merged experiment", zap.Stringer("pr", pr), zap.String("into", experimental))
	return nil
}
