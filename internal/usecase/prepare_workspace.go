package usecase

import (
	"context"
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"go.uber.org/zap"
)

// PrepareWorkspaceInput describes the remotes and identity used for the run.
type PrepareWorkspaceInput struct {
	Mainline     string
	OriginRemote string
	ForkRemote   string
	ForkURL      string
	UserName     string
	UserEmail    string
}

// PrepareWorkspaceUseCase resets the working tree onto an up-to-date mainline.
type PrepareWorkspaceUseCase struct {
	GitRepo repository.GitRepository
	GitCLI  service.GitCLIService
	Logger  *zap.Logger
}

// Execute runs the use case.
func (uc *PrepareWorkspaceUseCase) Execute(ctx context.Context, in PrepareWorkspaceInput) error {
	if err := uc.GitCLI.Clean(ctx); err != nil {
		return fmt.Errorf("failed to clean workspace: %w", err)
	}
	if err := uc.GitCLI.DiscardChanges(ctx); err != nil {
		return fmt.Errorf("failed to discard changes: %w", err)
	}
	if err := uc.GitCLI.Checkout(ctx, in.Mainline); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", in.Mainline, err)
	}
	if in.ForkURL == "" {
		uc.Logger.Warn("no fork configured, leaving remote untouched", zap.String("remote", in.ForkRemote))
	} else if err := uc.GitRepo.EnsureRemote(ctx, in.ForkRemote, in.ForkURL); err != nil {
		return fmt.Errorf("failed to configure %s remote: %w", in.ForkRemote, err)
	}
	tracking := fmt.Sprintf("refs/remotes/%s/%s", in.OriginRemote, in.Mainline)
	spec := fmt.Sprintf("+refs/heads/%s:%s", in.Mainline, tracking)
	if err := uc.GitRepo.Fetch(ctx, in.OriginRemote, spec); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", in.Mainline, err)
	}
	if err := uc.GitCLI.ResetHard(ctx, tracking); err != nil {
		return fmt.Errorf("failed to update %s: %w", in.Mainline, err)
	}
	if in.UserName != "" && in.UserEmail != "" {
		if err := uc.GitRepo.ConfigureUser(ctx, in.UserName, in.UserEmail); err != nil {
			return fmt.Errorf("failed to configure git user: %w", err)
		}
	}
	uc.Logger.Info("workspace prepared",
		zap.String("mainline", in.Mainline),
		zap.String("fork_remote", in.ForkRemote))
	return nil
}
