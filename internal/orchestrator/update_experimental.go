package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"github.com/raffihsieh/update-experimental/internal/usecase"
	"go.uber.org/zap"
)

// Skip reasons reported in CI output
const (
	SkipReasonNoEnlisted        = "no_enlisted_prs"
	SkipReasonTriggerNotListed  = "trigger_not_enlisted"
	SkipReasonMainlineConflict  = "enlisted_pr_conflicts_with_mainline"
	operationIDSeparator        = ":"
	defaultMergeabilityAttempts = 5
)

// UpdateConfig contains the per-run inputs of the update workflow.
type UpdateConfig struct {
	// Enlisted PR numbers in merge order, as given on the command line
	Enlisted       []string
	Trigger        string
	DryRun         bool
	CIOutput       bool
	EnableRollback bool
}

// Settings are the repository-level options of the update workflow.
type Settings struct {
	MainlineBranch       string
	ExperimentalBranch   string
	OriginRemote         string
	ForkRemote           string
	ForkURL              string
	GitUserName          string
	GitUserEmail         string
	MergeabilityAttempts int
}

// Dependencies are the collaborators of the update orchestrator.
type Dependencies struct {
	GitRepo    repository.GitRepository
	GitCLI     service.GitCLIService
	GithubRepo repository.GithubRepository
	StateRepo  repository.StateRepository
	RunLock    repository.RunLock
	Logger     *zap.Logger
	// Out receives CI output and status lines; defaults to stdout
	Out io.Writer
}

// UpdateExperimentalOrchestrator rebases the enlisted PRs and rebuilds the experimental branch from them.
type UpdateExperimentalOrchestrator struct {
	gitRepo    repository.GitRepository
	gitCLI     service.GitCLIService
	githubRepo repository.GithubRepository
	stateRepo  repository.StateRepository
	runLock    repository.RunLock
	logger     *zap.Logger
	out        io.Writer
	settings   Settings
}

// NewUpdateExperimentalOrchestrator creates a new update orchestrator.
func NewUpdateExperimentalOrchestrator(deps Dependencies, settings Settings) *UpdateExperimentalOrchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if settings.MergeabilityAttempts < 1 {
		settings.MergeabilityAttempts = defaultMergeabilityAttempts
	}
	return &UpdateExperimentalOrchestrator{
		gitRepo:    deps.GitRepo,
		gitCLI:     deps.GitCLI,
		githubRepo: deps.GithubRepo,
		stateRepo:  deps.StateRepo,
		runLock:    deps.RunLock,
		logger:     deps.Logger,
		out:        deps.Out,
		settings:   settings,
	}
}

// workflowContext holds shared state for workflow execution
type workflowContext struct {
	trigger   domain.PRNumber
	skippedPR domain.PRNumber
}

// Execute runs the update workflow. It returns nil when there is nothing to do or
// when a non-trigger PR conflicts with mainline.
func (o *UpdateExperimentalOrchestrator) Execute(ctx context.Context, cfg UpdateConfig) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultWorkflowTimeout)
	defer cancel()
	enlistment := domain.NewEnlistment(cfg.Enlisted)
	o.printCIOutput(cfg.CIOutput, "enlisted=%s\n", strings.Join(enlistment.Raw(), ","))
	if enlistment.Empty() {
		o.printCIOutput(cfg.CIOutput, "triggered=false\n")
		o.skip(cfg, SkipReasonNoEnlisted, "No enlisted PRs, nothing to update")
		return nil
	}
	if !enlistment.Contains(cfg.Trigger) {
		o.printCIOutput(cfg.CIOutput, "triggered=false\n")
		o.skip(cfg, SkipReasonTriggerNotListed,
			fmt.Sprintf("Trigger %q is not enlisted, nothing to update", cfg.Trigger))
		return nil
	}
	o.printCIOutput(cfg.CIOutput, "triggered=true\n")
	prs, err := enlistment.Resolve()
	if err != nil {
		return err
	}
	trigger, err := domain.ParsePRNumber(cfg.Trigger)
	if err != nil {
		return err
	}
	if err := ValidateSettings(o.settings, cfg.DryRun); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := o.runLock.Acquire(ctx, RunLockTimeout); err != nil {
		return err
	}
	defer func() {
		if err := o.runLock.Release(); err != nil {
			o.logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()
	o.logger.Info("performing experimental branch updating and merging",
		zap.String("enlisted", enlistment.String()),
		zap.Stringer("trigger", trigger),
		zap.Bool("dry_run", cfg.DryRun))
	saga := o.initializeSaga(ctx, cfg, enlistment)
	wctx := &workflowContext{trigger: trigger}
	o.buildWorkflow(saga, cfg, prs, wctx)
	if err := saga.Execute(ctx); err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}
	if saga.GetState().Status == domain.WorkflowStatusSkipped {
		o.skip(cfg, SkipReasonMainlineConflict,
			fmt.Sprintf("PR %d conflicts with %s, experimental branch left unchanged",
				wctx.skippedPR, o.settings.MainlineBranch))
		return nil
	}
	head, err := o.gitRepo.BranchHead(ctx, o.settings.ExperimentalBranch)
	if err != nil {
		return fmt.Errorf("failed to read %s head: %w", o.settings.ExperimentalBranch, err)
	}
	o.printCIOutput(cfg.CIOutput, "skipped_reason=\n")
	o.printCIOutput(cfg.CIOutput, "experimental_head=%s\n", head)
	if cfg.DryRun {
		o.printStatus(cfg.CIOutput, fmt.Sprintf("Dry run complete: %s rebuilt locally at %s (nothing pushed)",
			o.settings.ExperimentalBranch, head))
		return nil
	}
	o.printStatus(cfg.CIOutput, fmt.Sprintf("%s updated to %s with PRs %s",
		o.settings.ExperimentalBranch, head, enlistment.String()))
	return nil
}

// Rollback runs the compensations of a persisted session, the latest one when sessionID is empty.
func (o *UpdateExperimentalOrchestrator) Rollback(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, RollbackTimeout)
	defer cancel()
	if sessionID == "" {
		state, err := o.stateRepo.LoadLatest(ctx)
		if err != nil {
			return fmt.Errorf("failed to load latest session: %w", err)
		}
		sessionID = state.SessionID
	} else {
		exists, err := o.stateRepo.Exists(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to look up session %s: %w", sessionID, err)
		}
		if !exists {
			return fmt.Errorf("session %s not found in state directory", sessionID)
		}
	}
	saga, err := LoadExistingSaga(ctx, o.stateRepo, sessionID, o.logger)
	if err != nil {
		return fmt.Errorf("failed to load saga: %w", err)
	}
	if err := o.runLock.Acquire(ctx, RunLockTimeout); err != nil {
		return err
	}
	defer func() {
		if err := o.runLock.Release(); err != nil {
			o.logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()
	o.registerCompensations(saga, NewCompensatingActions(o.gitRepo, o.gitCLI, o.logger))
	if err := saga.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	if err := o.stateRepo.Delete(ctx, sessionID); err != nil {
		o.logger.Warn("failed to delete rolled back session", zap.String("session_id", sessionID), zap.Error(err))
	}
	o.printStatus(false, fmt.Sprintf("Rolled back session %s", sessionID))
	return nil
}

// initializeSaga creates and configures the saga executor
func (o *UpdateExperimentalOrchestrator) initializeSaga(
	ctx context.Context,
	cfg UpdateConfig,
	enlistment *domain.Enlistment,
) *SagaExecutor {
	saga := NewSagaExecutor(o.stateRepo, cfg.EnableRollback, o.logger)
	saga.SetRunContext(strings.TrimSpace(cfg.Trigger), enlistment.Raw(), o.settings.ExperimentalBranch)
	// CI checkouts are often detached; the original branch is then left empty
	if original, err := o.gitRepo.CurrentBranch(ctx); err == nil {
		saga.SetOriginalBranch(original)
	} else {
		o.logger.Debug("no original branch to restore", zap.Error(err))
	}
	return saga
}

// buildWorkflow adds every step of the run in execution order
func (o *UpdateExperimentalOrchestrator) buildWorkflow(
	saga *SagaExecutor,
	cfg UpdateConfig,
	prs []domain.PRNumber,
	wctx *workflowContext,
) {
	compensator := NewCompensatingActions(o.gitRepo, o.gitCLI, o.logger)
	o.addPrepareWorkspaceStep(saga, compensator)
	for _, pr := range prs {
		o.addCheckMergeabilityStep(saga, cfg, compensator, wctx, pr)
		o.addRebaseStep(saga, compensator, pr)
		o.addPushPRStep(saga, cfg, compensator, pr)
	}
	o.addRecreateExperimentalStep(saga, compensator)
	for _, pr := range prs {
		o.addMergeStep(saga, compensator, pr)
	}
	o.addPushExperimentalStep(saga, cfg, compensator)
}

// registerCompensations maps persisted operation types to their compensations
func (o *UpdateExperimentalOrchestrator) registerCompensations(saga *SagaExecutor, compensator *CompensatingActions) {
	saga.RegisterCompensation(domain.OperationTypePrepareWorkspace, compensator.RestoreWorkspace)
	saga.RegisterCompensation(domain.OperationTypeCheckMergeability, compensator.NoOp)
	saga.RegisterCompensation(domain.OperationTypeRebasePR, compensator.RestoreBranch)
	saga.RegisterCompensation(domain.OperationTypePushPR, compensator.ReportPushed)
	saga.RegisterCompensation(domain.OperationTypeRecreateExperiment, compensator.RestoreBranch)
	saga.RegisterCompensation(domain.OperationTypeMergePR, compensator.NoOp)
	saga.RegisterCompensation(domain.OperationTypePushExperimental, compensator.ReportPushed)
}

func operationID(opType domain.OperationType, pr domain.PRNumber) string {
	return string(opType) + operationIDSeparator + pr.String()
}

// Workflow step methods
func (o *UpdateExperimentalOrchestrator) addPrepareWorkspaceStep(saga *SagaExecutor, compensator *CompensatingActions) {
	saga.AddStep(SagaStep{
		Name:      "Prepare Workspace",
		Type:      domain.OperationTypePrepareWorkspace,
		Retryable: true,
		Execute: func(ctx context.Context) (map[string]any, error) {
			uc := &usecase.PrepareWorkspaceUseCase{GitRepo: o.gitRepo, GitCLI: o.gitCLI, Logger: o.logger}
			err := uc.Execute(ctx, usecase.PrepareWorkspaceInput{
				Mainline:     o.settings.MainlineBranch,
				OriginRemote: o.settings.OriginRemote,
				ForkRemote:   o.settings.ForkRemote,
				ForkURL:      o.settings.ForkURL,
				UserName:     o.settings.GitUserName,
				UserEmail:    o.settings.GitUserEmail,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				rollbackKeyOriginalBranch: saga.GetState().OriginalBranch,
			}, nil
		},
		Compensate: compensator.RestoreWorkspace,
	})
}

func (o *UpdateExperimentalOrchestrator) addCheckMergeabilityStep(
	saga *SagaExecutor,
	cfg UpdateConfig,
	compensator *CompensatingActions,
	wctx *workflowContext,
	pr domain.PRNumber,
) {
	saga.AddStep(SagaStep{
		ID:        operationID(domain.OperationTypeCheckMergeability, pr),
		Name:      fmt.Sprintf("Check Mergeability of PR %d", pr),
		Type:      domain.OperationTypeCheckMergeability,
		Retryable: true,
		Execute: func(ctx context.Context) (map[string]any, error) {
			uc := &usecase.CheckMergeabilityUseCase{
				GithubRepo: o.githubRepo,
				Logger:     o.logger,
				Attempts:   o.settings.MergeabilityAttempts,
				Delay:      MergeabilityDelay,
			}
			rebaseable, err := uc.Execute(ctx, usecase.MergeabilityInput{
				PR:       pr,
				Trigger:  pr == wctx.trigger,
				Mainline: o.settings.MainlineBranch,
				DryRun:   cfg.DryRun,
			})
			if err != nil {
				return nil, err
			}
			if !rebaseable {
				wctx.skippedPR = pr
				return nil, ErrStopWorkflow
			}
			return map[string]any{"pr": pr.String()}, nil
		},
		Compensate: compensator.NoOp,
	})
}

func (o *UpdateExperimentalOrchestrator) addRebaseStep(
	saga *SagaExecutor,
	compensator *CompensatingActions,
	pr domain.PRNumber,
) {
	saga.AddStep(SagaStep{
		ID:   operationID(domain.OperationTypeRebasePR, pr),
		Name: fmt.Sprintf("Rebase PR %d", pr),
		Type: domain.OperationTypeRebasePR,
		Execute: func(ctx context.Context) (map[string]any, error) {
			uc := &usecase.RebasePullRequestUseCase{GitRepo: o.gitRepo, GitCLI: o.gitCLI, Logger: o.logger}
			result, err := uc.Execute(ctx, pr, o.settings.OriginRemote, o.settings.MainlineBranch)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				rollbackKeyBranch:         result.Branch,
				rollbackKeyPreviousHead:   result.PreviousHead,
				rollbackKeyFallbackBranch: o.settings.MainlineBranch,
			}, nil
		},
		Compensate: compensator.RestoreBranch,
	})
}

func (o *UpdateExperimentalOrchestrator) addPushPRStep(
	saga *SagaExecutor,
	cfg UpdateConfig,
	compensator *CompensatingActions,
	pr domain.PRNumber,
) {
	saga.AddStep(SagaStep{
		ID:        operationID(domain.OperationTypePushPR, pr),
		Name:      fmt.Sprintf("Push PR %d", pr),
		Type:      domain.OperationTypePushPR,
		Retryable: true,
		Execute: func(ctx context.Context) (map[string]any, error) {
			return o.push(ctx, cfg, pr.BranchName())
		},
		Compensate: compensator.ReportPushed,
	})
}

func (o *UpdateExperimentalOrchestrator) addRecreateExperimentalStep(
	saga *SagaExecutor,
	compensator *CompensatingActions,
) {
	saga.AddStep(SagaStep{
		Name: "Recreate Experimental Branch",
		Type: domain.OperationTypeRecreateExperiment,
		Execute: func(ctx context.Context) (map[string]any, error) {
			uc := &usecase.RecreateExperimentalUseCase{GitRepo: o.gitRepo, GitCLI: o.gitCLI, Logger: o.logger}
			previous, err := uc.Execute(ctx, o.settings.MainlineBranch, o.settings.ExperimentalBranch)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				rollbackKeyBranch:         o.settings.ExperimentalBranch,
				rollbackKeyPreviousHead:   previous,
				rollbackKeyFallbackBranch: o.settings.MainlineBranch,
			}, nil
		},
		Compensate: compensator.RestoreBranch,
	})
}

func (o *UpdateExperimentalOrchestrator) addMergeStep(
	saga *SagaExecutor,
	compensator *CompensatingActions,
	pr domain.PRNumber,
) {
	saga.AddStep(SagaStep{
		ID:   operationID(domain.OperationTypeMergePR, pr),
		Name: fmt.Sprintf("Merge PR %d", pr),
		Type: domain.OperationTypeMergePR,
		Execute: func(ctx context.Context) (map[string]any, error) {
			uc := &usecase.MergeExperimentUseCase{GitRepo: o.gitRepo, GitCLI: o.gitCLI, Logger: o.logger}
			if err := uc.Execute(ctx, pr, o.settings.ExperimentalBranch); err != nil {
				return nil, err
			}
			return map[string]any{"pr": pr.String()}, nil
		},
		// Restoring the experimental branch undoes every merge
		Compensate: compensator.NoOp,
	})
}

func (o *UpdateExperimentalOrchestrator) addPushExperimentalStep(
	saga *SagaExecutor,
	cfg UpdateConfig,
	compensator *CompensatingActions,
) {
	saga.AddStep(SagaStep{
		Name:      "Push Experimental Branch",
		Type:      domain.OperationTypePushExperimental,
		Retryable: true,
		Execute: func(ctx context.Context) (map[string]any, error) {
			return o.push(ctx, cfg, o.settings.ExperimentalBranch)
		},
		Compensate: compensator.ReportPushed,
	})
}

// push force pushes branch to the fork, or only logs it in dry run
func (o *UpdateExperimentalOrchestrator) push(ctx context.Context, cfg UpdateConfig, branch string) (map[string]any, error) {
	data := map[string]any{
		rollbackKeyBranch: branch,
		rollbackKeyRemote: o.settings.ForkRemote,
		rollbackKeyPushed: false,
	}
	if cfg.DryRun {
		o.logger.Info("dry run: skipping push", zap.String("branch", branch), zap.String("remote", o.settings.ForkRemote))
		return data, nil
	}
	if err := o.gitRepo.PushBranch(ctx, o.settings.ForkRemote, branch, true); err != nil {
		return nil, fmt.Errorf("failed to push %s to %s: %w", branch, o.settings.ForkRemote, err)
	}
	data[rollbackKeyPushed] = true
	return data, nil
}

func (o *UpdateExperimentalOrchestrator) skip(cfg UpdateConfig, reason, message string) {
	o.printCIOutput(cfg.CIOutput, "skipped_reason=%s\n", reason)
	o.logger.Info(message, zap.String("reason", reason))
	o.printStatus(cfg.CIOutput, message)
}

// printCIOutput prints output in CI format if enabled
func (o *UpdateExperimentalOrchestrator) printCIOutput(ciOutput bool, format string, args ...any) {
	if ciOutput {
		fmt.Fprintf(o.out, format, args...)
	}
}

// printStatus prints status messages when not in CI mode
func (o *UpdateExperimentalOrchestrator) printStatus(ciOutput bool, message string) {
	if !ciOutput {
		fmt.Fprintln(o.out, message)
	}
}
