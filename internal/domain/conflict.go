package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMainlineConflict marks a PR that no longer rebases onto the mainline branch.
	ErrMainlineConflict = errors.New("conflict against mainline")
	// ErrExperimentConflict marks two enlisted PRs that conflict with each other.
	ErrExperimentConflict = errors.New("conflict between experiments")
	// ErrMergeabilityUnknown is returned when the host never finished computing rebaseability.
	ErrMergeabilityUnknown = errors.New("mergeability unknown")
)

// ConflictKind separates the two conflict classes the reconciler reports.
type ConflictKind string

const (
	ConflictKindMainline   ConflictKind = "mainline"
	ConflictKindExperiment ConflictKind = "experiment"
)

// ConflictError reports the PR that stopped the run.
type ConflictError struct {
	Kind     ConflictKind
	PR       PRNumber
	Mainline string
}

// NewMainlineConflict builds the error for a PR that conflicts with the mainline branch.
func NewMainlineConflict(pr PRNumber, mainline string) *ConflictError {
	return &ConflictError{Kind: ConflictKindMainline, PR: pr, Mainline: mainline}
}

// NewExperimentConflict builds the error for a PR that conflicts with an earlier experiment.
func NewExperimentConflict(pr PRNumber) *ConflictError {
	return &ConflictError{Kind: ConflictKindExperiment, PR: pr}
}

func (e *ConflictError) Error() string {
	if e.Kind == ConflictKindMainline {
		return fmt.Sprintf("Merge conflict detected in PR %d with %s", int(e.PR), e.Mainline)
	}
	return fmt.Sprintf("Merge conflict detected involving PR %d with other experiment", int(e.PR))
}

// Is lets errors.Is match the conflict class sentinels.
func (e *ConflictError) Is(target error) bool {
	switch target {
	case ErrMainlineConflict:
		return e.Kind == ConflictKindMainline
	case ErrExperimentConflict:
		return e.Kind == ConflictKindExperiment
	}
	return false
}
