package domain

import (
	"time"
)

// WorkflowStatus represents the overall status of an update run
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusRunning    WorkflowStatus = "running"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusSkipped    WorkflowStatus = "skipped"
	WorkflowStatusFailed     WorkflowStatus = "failed"
	WorkflowStatusRolledBack WorkflowStatus = "rolled_back"
)

// OperationStatus represents the status of an individual operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusRunning    OperationStatus = "running"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
	OperationStatusRolledBack OperationStatus = "rolled_back"
)

// OperationType identifies the kind of operation. Per-PR operations share a type
// and are told apart by their ID.
type OperationType string

const (
	OperationTypePrepareWorkspace   OperationType = "prepare_workspace"
	OperationTypeCheckMergeability  OperationType = "check_mergeability"
	OperationTypeRebasePR           OperationType = "rebase_pr"
	OperationTypePushPR             OperationType = "push_pr"
	OperationTypeRecreateExperiment OperationType = "recreate_experimental"
	OperationTypeMergePR            OperationType = "merge_pr"
	OperationTypePushExperimental   OperationType = "push_experimental"
)

// RunState is the persisted record of one update run, used for rollback.
type RunState struct {
	SessionID          string            `json:"session_id"`
	StartedAt          time.Time         `json:"started_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	TriggerPR          string            `json:"trigger_pr"`
	Enlisted           []string          `json:"enlisted"`
	OriginalBranch     string            `json:"original_branch"`
	ExperimentalBranch string            `json:"experimental_branch"`
	Operations         []OperationRecord `json:"operations"`
	Status             WorkflowStatus    `json:"status"`
	Error              string            `json:"error,omitempty"`
}

// OperationRecord represents a single operation in the run
type OperationRecord struct {
	ID           string          `json:"id"`
	Type         OperationType   `json:"type"`
	Status       OperationStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	RollbackData map[string]any  `json:"rollback_data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// NewRunState creates a new run state
func NewRunState(sessionID string) *RunState {
	now := time.Now()
	return &RunState{
		SessionID:  sessionID,
		StartedAt:  now,
		UpdatedAt:  now,
		Operations: []OperationRecord{},
		Status:     WorkflowStatusPending,
	}
}

// AddOperation appends a pending operation record.
func (rs *RunState) AddOperation(id string, opType OperationType) *OperationRecord {
	rs.Operations = append(rs.Operations, OperationRecord{
		ID:        id,
		Type:      opType,
		Status:    OperationStatusPending,
		StartedAt: time.Now(),
	})
	rs.UpdatedAt = time.Now()
	return &rs.Operations[len(rs.Operations)-1]
}

// Operation returns the record with the given ID.
func (rs *RunState) Operation(id string) *OperationRecord {
	for i := range rs.Operations {
		if rs.Operations[i].ID == id {
			return &rs.Operations[i]
		}
	}
	return nil
}

// CompletedOperations returns all completed operations, most recent first.
func (rs *RunState) CompletedOperations() []OperationRecord {
	var completed []OperationRecord
	for i := len(rs.Operations) - 1; i >= 0; i-- {
		if rs.Operations[i].Status == OperationStatusCompleted {
			completed = append(completed, rs.Operations[i])
		}
	}
	return completed
}

// MarkOperationStarted marks a pending operation as running.
func (rs *RunState) MarkOperationStarted(id string) {
	if op := rs.Operation(id); op != nil && op.Status == OperationStatusPending {
		op.Status = OperationStatusRunning
		op.StartedAt = time.Now()
		rs.UpdatedAt = op.StartedAt
	}
}

// MarkOperationCompleted marks a running operation as completed with its rollback data.
func (rs *RunState) MarkOperationCompleted(id string, rollbackData map[string]any) {
	now := time.Now()
	if op := rs.Operation(id); op != nil && op.Status == OperationStatusRunning {
		op.Status = OperationStatusCompleted
		op.CompletedAt = &now
		op.RollbackData = rollbackData
		rs.UpdatedAt = now
	}
}

// MarkOperationFailed marks a running operation and the whole run as failed.
func (rs *RunState) MarkOperationFailed(id string, err error) {
	now := time.Now()
	if op := rs.Operation(id); op != nil && op.Status == OperationStatusRunning {
		op.Status = OperationStatusFailed
		op.CompletedAt = &now
		op.Error = err.Error()
		rs.UpdatedAt = now
	}
	rs.Status = WorkflowStatusFailed
	rs.Error = err.Error()
}

// MarkOperationRolledBack records a successful compensation.
func (rs *RunState) MarkOperationRolledBack(id string) {
	if op := rs.Operation(id); op != nil && op.Status == OperationStatusCompleted {
		op.Status = OperationStatusRolledBack
		rs.UpdatedAt = time.Now()
	}
}
