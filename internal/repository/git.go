package repository

import "context"

// GitRepository defines the ref, remote and transport operations performed with go-git.

type GitRepository interface {
	// Branch operations
	CurrentBranch(ctx context.Context) (string, error)
	HeadCommit(ctx context.Context) (string, error)
	BranchExists(ctx context.Context, name string) (bool, error)
	BranchHead(ctx context.Context, name string) (string, error)
	CreateBranch(ctx context.Context, name, revision string) error
	SetBranchHead(ctx context.Context, name, hash string) error
	DeleteBranch(ctx context.Context, name string) error
	// Remote operations
	EnsureRemote(ctx context.Context, name, url string) error
	Fetch(ctx context.Context, remote string, refSpecs ...string) error
	PushBranch(ctx context.Context, remote, branch string, force bool) error
	// History operations
	MergeBase(ctx context.Context, a, b string) (string, error)
	// Git configuration
	ConfigureUser(ctx context.Context, name, email string) error
}
