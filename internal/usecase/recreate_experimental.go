package usecase

import (
	"context"
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"go.uber.org/zap"
)

// RecreateExperimentalUseCase replaces the experimental branch with a fresh copy of mainline.
type RecreateExperimentalUseCase struct {
	GitRepo repository.GitRepository
	GitCLI  service.GitCLIService
	Logger  *zap.Logger
}

// Execute returns the previous experimental head, or "" when the branch did not exist.
func (uc *RecreateExperimentalUseCase) Execute(ctx context.Context, mainline, experimental string) (string, error) {
	var previous string
	exists, err := uc.GitRepo.BranchExists(ctx, experimental)
	if err != nil {
		return "", fmt.Errorf("failed to check branch %s: %w", experimental, err)
	}
	if exists {
		if previous, err = uc.GitRepo.BranchHead(ctx, experimental); err != nil {
			return "", err
		}
	}
	if err := uc.GitCLI.Checkout(ctx, mainline); err != nil {
		return "", fmt.Errorf("failed to checkout %s: %w", mainline, err)
	}
	if exists {
		if err := uc.GitRepo.DeleteBranch(ctx, experimental); err != nil {
			return "", fmt.Errorf("failed to delete %s: %w", experimental, err)
		}
	}
	if err := uc.GitRepo.CreateBranch(ctx, experimental, mainline); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", experimental, err)
	}
	if err := uc.GitCLI.Checkout(ctx, experimental); err != nil {
		return "", fmt.Errorf("failed to checkout %s: %w", experimental, err)
	}
	uc.Logger.Info("recreated experimental branch",
		zap.String("branch", experimental),
		zap.String("from", mainline),
		zap.String("previous_head", previous))
	return previous, nil
}
