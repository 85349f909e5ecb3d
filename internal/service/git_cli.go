package service

import (
	"context"

	"github.com/raffihsieh/update-experimental/internal/domain"
)

// GitCLIService covers the git operations go-git cannot perform: working tree
// cleanup, rebase, merge and merge simulation.

type GitCLIService interface {
	Clean(ctx context.Context) error
	DiscardChanges(ctx context.Context) error
	Checkout(ctx context.Context, branch string) error
	// ResetHard moves the current branch and working tree to ref, keeping untracked files.
	ResetHard(ctx context.Context, ref string) error
	Rebase(ctx context.Context, onto string) error
	AbortRebase(ctx context.Context) error
	MergeNoFF(ctx context.Context, branch string) error
	AbortMerge(ctx context.Context) error
	// SimulateMerge reports whether merging branch into target on top of base would conflict.
	SimulateMerge(ctx context.Context, base, branch, target string) (bool, error)
	Version(ctx context.Context) (*domain.GitVersion, error)
}
