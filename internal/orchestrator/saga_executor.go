package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrStopWorkflow ends a saga early. Completed steps are kept and the run is marked skipped.
var ErrStopWorkflow = errors.New("workflow stopped")

// CompensateFunc undoes a completed step using the data it recorded
type CompensateFunc func(ctx context.Context, rollbackData map[string]any) error

// SagaStep represents a single step in the saga workflow
type SagaStep struct {
	// ID must be unique within a saga; defaults to the operation type
	ID   string
	Name string
	Type domain.OperationType
	// Retryable steps are retried with exponential backoff on transient errors
	Retryable  bool
	Execute    func(ctx context.Context) (rollbackData map[string]any, err error)
	Compensate CompensateFunc
}

// SagaExecutor manages the execution of saga workflows with rollback support
type SagaExecutor struct {
	sessionID      string
	stateRepo      repository.StateRepository
	state          *domain.RunState
	steps          []SagaStep
	compensations  map[domain.OperationType]CompensateFunc
	enableRollback bool
	logger         *zap.Logger
}

// NewSagaExecutor creates a new saga executor
func NewSagaExecutor(stateRepo repository.StateRepository, enableRollback bool, logger *zap.Logger) *SagaExecutor {
	sessionID := uuid.New().String()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SagaExecutor{
		sessionID:      sessionID,
		stateRepo:      stateRepo,
		state:          domain.NewRunState(sessionID),
		steps:          []SagaStep{},
		compensations:  map[domain.OperationType]CompensateFunc{},
		enableRollback: enableRollback,
		logger:         logger.With(zap.String("session_id", sessionID)),
	}
}

// LoadExistingSaga loads an existing saga from state
func LoadExistingSaga(
	ctx context.Context,
	stateRepo repository.StateRepository,
	sessionID string,
	logger *zap.Logger,
) (*SagaExecutor, error) {
	state, err := stateRepo.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saga state: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SagaExecutor{
		sessionID:      sessionID,
		stateRepo:      stateRepo,
		state:          state,
		steps:          []SagaStep{},
		compensations:  map[domain.OperationType]CompensateFunc{},
		enableRollback: true,
		logger:         logger.With(zap.String("session_id", sessionID)),
	}, nil
}

// AddStep adds a step to the saga
func (s *SagaExecutor) AddStep(step SagaStep) {
	if step.ID == "" {
		step.ID = string(step.Type)
	}
	s.steps = append(s.steps, step)
	s.state.AddOperation(step.ID, step.Type)
}

// RegisterCompensation sets the compensation used for loaded operations of opType
func (s *SagaExecutor) RegisterCompensation(opType domain.OperationType, fn CompensateFunc) {
	s.compensations[opType] = fn
}

// Execute runs the saga workflow with automatic rollback on failure
func (s *SagaExecutor) Execute(ctx context.Context) error {
	if s.enableRollback {
		if err := s.saveState(ctx); err != nil {
			return fmt.Errorf("failed to save initial state: %w", err)
		}
	}
	s.state.Status = domain.WorkflowStatusRunning
	for _, step := range s.steps {
		err := s.executeStep(ctx, step)
		if errors.Is(err, ErrStopWorkflow) {
			s.state.MarkOperationCompleted(step.ID, map[string]any{"stopped": true})
			s.state.Status = domain.WorkflowStatusSkipped
			s.logger.Info("workflow stopped early", zap.String("step", step.Name))
			s.bestEffortSave(ctx, "stop")
			return nil
		}
		if err != nil {
			s.state.MarkOperationFailed(step.ID, err)
			if s.enableRollback {
				s.bestEffortSave(ctx, "before rollback")
				// Separate context so the rollback completes after cancellation
				rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
				rollbackErr := s.rollback(rollbackCtx)
				cancel()
				if rollbackErr != nil {
					return fmt.Errorf("step '%s' failed: %w, rollback also failed: %v",
						step.Name, err, rollbackErr)
				}
			}
			return fmt.Errorf("step '%s' failed: %w", step.Name, err)
		}
	}
	s.state.Status = domain.WorkflowStatusCompleted
	s.bestEffortSave(ctx, "completion")
	return nil
}

// executeStep executes a single saga step, retrying transient failures of retryable steps
func (s *SagaExecutor) executeStep(ctx context.Context, step SagaStep) error {
	s.state.MarkOperationStarted(step.ID)
	s.bestEffortSave(ctx, "operation started")
	s.logger.Debug("executing step", zap.String("step", step.Name), zap.String("id", step.ID))
	var rollbackData map[string]any
	retries := uint64(0)
	if step.Retryable {
		retries = DefaultRetryCount
	}
	retryStrategy := retry.WithMaxRetries(retries, retry.NewExponential(DefaultRetryDelay))
	err := retry.Do(ctx, retryStrategy, func(retryCtx context.Context) error {
		select {
		case <-retryCtx.Done():
			return retryCtx.Err()
		default:
		}
		data, execErr := step.Execute(retryCtx)
		if execErr != nil {
			if isPermanent(execErr) {
				return execErr
			}
			s.logger.Debug("step attempt failed", zap.String("step", step.Name), zap.Error(execErr))
			return retry.RetryableError(execErr)
		}
		rollbackData = data
		return nil
	})
	if err != nil {
		return err
	}
	s.state.MarkOperationCompleted(step.ID, rollbackData)
	s.bestEffortSave(ctx, "operation completed")
	return nil
}

// isPermanent reports errors that a retry cannot fix
func isPermanent(err error) bool {
	permanent := []error{
		ErrStopWorkflow,
		domain.ErrMainlineConflict,
		domain.ErrExperimentConflict,
		domain.ErrMergeabilityUnknown,
		domain.ErrInvalidPRNumber,
		repository.ErrPullRequestNotFound,
		repository.ErrGithubTokenRequired,
		context.Canceled,
		context.DeadlineExceeded,
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Rollback executes compensating actions for completed operations
func (s *SagaExecutor) Rollback(ctx context.Context) error {
	return s.rollback(ctx)
}

// rollback internal implementation
func (s *SagaExecutor) rollback(ctx context.Context) error {
	s.logger.Info("starting rollback")
	completedOps := s.state.CompletedOperations()
	if len(completedOps) == 0 {
		s.logger.Info("no operations to roll back")
		return nil
	}
	for _, op := range completedOps {
		select {
		case <-ctx.Done():
			return fmt.Errorf("rollback canceled: %w", ctx.Err())
		default:
		}
		name, compensate := s.compensationFor(op)
		if compensate == nil {
			continue
		}
		s.logger.Info("rolling back", zap.String("step", name))
		if err := s.executeCompensation(ctx, compensate, op.RollbackData); err != nil {
			s.logger.Error("rollback step failed", zap.String("step", name), zap.Error(err))
			return fmt.Errorf("rollback failed for %s: %w", name, err)
		}
		s.state.MarkOperationRolledBack(op.ID)
		s.bestEffortSave(ctx, "rollback step")
	}
	s.state.Status = domain.WorkflowStatusRolledBack
	s.bestEffortSave(ctx, "after rollback")
	s.logger.Info("rollback completed")
	return nil
}

// compensationFor resolves the compensation of a completed operation
func (s *SagaExecutor) compensationFor(op domain.OperationRecord) (string, CompensateFunc) {
	for i := range s.steps {
		if s.steps[i].ID == op.ID {
			return s.steps[i].Name, s.steps[i].Compensate
		}
	}
	return op.ID, s.compensations[op.Type]
}

// executeCompensation executes a compensating action with retry
func (s *SagaExecutor) executeCompensation(ctx context.Context, compensate CompensateFunc, rollbackData map[string]any) error {
	retryStrategy := retry.WithMaxRetries(DefaultRetryCount, retry.NewExponential(DefaultRetryDelay))
	return retry.Do(ctx, retryStrategy, func(retryCtx context.Context) error {
		select {
		case <-retryCtx.Done():
			return retryCtx.Err()
		default:
		}
		if err := compensate(retryCtx, rollbackData); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// saveState persists the current state
func (s *SagaExecutor) saveState(ctx context.Context) error {
	return s.stateRepo.Save(ctx, s.state)
}

// bestEffortSave persists state when rollback is enabled and only logs failures
func (s *SagaExecutor) bestEffortSave(ctx context.Context, phase string) {
	if !s.enableRollback {
		return
	}
	if err := s.saveState(ctx); err != nil {
		s.logger.Warn("failed to save state", zap.String("phase", phase), zap.Error(err))
	}
}

// GetState returns the current saga state
func (s *SagaExecutor) GetState() *domain.RunState {
	return s.state
}

// SessionID returns the session identifier used for state files
func (s *SagaExecutor) SessionID() string {
	return s.sessionID
}

// SetRunContext records what the run was started with
func (s *SagaExecutor) SetRunContext(trigger string, enlisted []string, experimental string) {
	s.state.TriggerPR = trigger
	s.state.Enlisted = enlisted
	s.state.ExperimentalBranch = experimental
}

// SetOriginalBranch sets the original branch in the state
func (s *SagaExecutor) SetOriginalBranch(branchName string) {
	s.state.OriginalBranch = branchName
}
