package orchestrator

import (
	"context"
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"go.uber.org/zap"
)

// Rollback data keys
const (
	rollbackKeyBranch         = "branch"
	rollbackKeyPreviousHead   = "previous_head"
	rollbackKeyFallbackBranch = "fallback_branch"
	rollbackKeyOriginalBranch = "original_branch"
	rollbackKeyRemote         = "remote"
	rollbackKeyPushed         = "pushed"
)

// CompensatingActions provides idempotent rollback operations for the update workflow steps
type CompensatingActions struct {
	gitRepo repository.GitRepository
	gitCLI  service.GitCLIService
	logger  *zap.Logger
}

// NewCompensatingActions creates a new compensating actions handler
func NewCompensatingActions(
	gitRepo repository.GitRepository,
	gitCLI service.GitCLIService,
	logger *zap.Logger,
) *CompensatingActions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompensatingActions{
		gitRepo: gitRepo,
		gitCLI:  gitCLI,
		logger:  logger,
	}
}

// RestoreWorkspace aborts any half-done rebase or merge and checks out the branch the run started on
func (ca *CompensatingActions) RestoreWorkspace(ctx context.Context, rollbackData map[string]any) error {
	ca.abortInProgress(ctx)
	original := stringValue(rollbackData, rollbackKeyOriginalBranch)
	if original == "" {
		return nil
	}
	current, err := ca.gitRepo.CurrentBranch(ctx)
	if err == nil && current == original {
		return nil
	}
	exists, err := ca.gitRepo.BranchExists(ctx, original)
	if err != nil {
		return fmt.Errorf("failed to check branch %s: %w", original, err)
	}
	if !exists {
		ca.logger.Warn("original branch no longer exists", zap.String("branch", original))
		return nil
	}
	if err := ca.gitCLI.Checkout(ctx, original); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", original, err)
	}
	return nil
}

// RestoreBranch points a local branch back at the head it had before the step,
// or deletes it when the step created it
func (ca *CompensatingActions) RestoreBranch(ctx context.Context, rollbackData map[string]any) error {
	branch := stringValue(rollbackData, rollbackKeyBranch)
	if branch == "" {
		return nil
	}
	ca.abortInProgress(ctx)
	if err := ca.stepOffBranch(ctx, branch, stringValue(rollbackData, rollbackKeyFallbackBranch)); err != nil {
		return err
	}
	previous := stringValue(rollbackData, rollbackKeyPreviousHead)
	if previous != "" {
		if err := ca.gitRepo.SetBranchHead(ctx, branch, previous); err != nil {
			return fmt.Errorf("failed to restore %s: %w", branch, err)
		}
		ca.logger.Info("restored branch", zap.String("branch", branch), zap.String("head", previous))
		return nil
	}
	exists, err := ca.gitRepo.BranchExists(ctx, branch)
	if err != nil {
		return fmt.Errorf("failed to check branch %s: %w", branch, err)
	}
	if !exists {
		return nil
	}
	if err := ca.gitRepo.DeleteBranch(ctx, branch); err != nil {
		return fmt.Errorf("failed to delete %s: %w", branch, err)
	}
	ca.logger.Info("deleted branch created by the run", zap.String("branch", branch))
	return nil
}

// ReportPushed logs force pushes that cannot be undone; the previous remote head is not known
func (ca *CompensatingActions) ReportPushed(_ context.Context, rollbackData map[string]any) error {
	pushed, _ := rollbackData[rollbackKeyPushed].(bool)
	if !pushed {
		return nil
	}
	ca.logger.Warn("remote branch was force pushed and is left as is",
		zap.String("remote", stringValue(rollbackData, rollbackKeyRemote)),
		zap.String("branch", stringValue(rollbackData, rollbackKeyBranch)))
	return nil
}

// NoOp is a no-operation compensating action for operations that don't need rollback
func (ca *CompensatingActions) NoOp(_ context.Context, _ map[string]any) error {
	return nil
}

// abortInProgress clears an interrupted rebase or merge. Both commands succeed when nothing is in progress.
func (ca *CompensatingActions) abortInProgress(ctx context.Context) {
	if err := ca.gitCLI.AbortRebase(ctx); err != nil {
		ca.logger.Debug("abort rebase", zap.Error(err))
	}
	if err := ca.gitCLI.AbortMerge(ctx); err != nil {
		ca.logger.Debug("abort merge", zap.Error(err))
	}
}

// stepOffBranch checks out fallback when branch is checked out, so it can be moved or deleted
func (ca *CompensatingActions) stepOffBranch(ctx context.Context, branch, fallback string) error {
	current, err := ca.gitRepo.CurrentBranch(ctx)
	if err != nil || current != branch {
		return nil
	}
	if fallback == "" || fallback == branch {
		return fmt.Errorf("cannot switch from branch %s: no fallback branch", branch)
	}
	if err := ca.gitCLI.Checkout(ctx, fallback); err != nil {
		return fmt.Errorf("cannot switch from branch %s: %w", branch, err)
	}
	return nil
}

func stringValue(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	value, _ := data[key].(string)
	return value
}
