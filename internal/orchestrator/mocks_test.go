package orchestrator

import (
	"context"
	"time"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/stretchr/testify/mock"
)

// Mock for GitRepository
type mockGitRepository struct {
	mock.Mock
}

func (m *mockGitRepository) CurrentBranch(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockGitRepository) HeadCommit(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockGitRepository) BranchExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockGitRepository) BranchHead(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *mockGitRepository) CreateBranch(ctx context.Context, name, revision string) error {
	args := m.Called(ctx, name, revision)
	return args.Error(0)
}

func (m *mockGitRepository) SetBranchHead(ctx context.Context, name, hash string) error {
	args := m.Called(ctx, name, hash)
	return args.Error(0)
}

func (m *mockGitRepository) DeleteBranch(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockGitRepository) EnsureRemote(ctx context.Context, name, url string) error {
	args := m.Called(ctx, name, url)
	return args.Error(0)
}

func (m *mockGitRepository) Fetch(ctx context.Context, remote string, refSpecs ...string) error {
	args := m.Called(ctx, remote, refSpecs)
	return args.Error(0)
}

func (m *mockGitRepository) PushBranch(ctx context.Context, remote, branch string, force bool) error {
	args := m.Called(ctx, remote, branch, force)
	return args.Error(0)
}

func (m *mockGitRepository) MergeBase(ctx context.Context, a, b string) (string, error) {
	args := m.Called(ctx, a, b)
	return args.String(0), args.Error(1)
}

func (m *mockGitRepository) ConfigureUser(ctx context.Context, name, email string) error {
	args := m.Called(ctx, name, email)
	return args.Error(0)
}

// Mock for GitCLIService
type mockGitCLIService struct {
	mock.Mock
}

func (m *mockGitCLIService) Clean(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGitCLIService) DiscardChanges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGitCLIService) Checkout(ctx context.Context, branch string) error {
	return m.Called(ctx, branch).Error(0)
}

func (m *mockGitCLIService) ResetHard(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *mockGitCLIService) Rebase(ctx context.Context, onto string) error {
	return m.Called(ctx, onto).Error(0)
}

func (m *mockGitCLIService) AbortRebase(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGitCLIService) MergeNoFF(ctx context.Context, branch string) error {
	return m.Called(ctx, branch).Error(0)
}

func (m *mockGitCLIService) AbortMerge(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGitCLIService) SimulateMerge(ctx context.Context, base, branch, target string) (bool, error) {
	args := m.Called(ctx, base, branch, target)
	return args.Bool(0), args.Error(1)
}

func (m *mockGitCLIService) Version(ctx context.Context) (*domain.GitVersion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GitVersion), args.Error(1)
}

// Mock for GithubRepository
type mockGithubRepository struct {
	mock.Mock
}

func (m *mockGithubRepository) GetPullRequest(ctx context.Context, number domain.PRNumber) (*domain.PullRequest, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PullRequest), args.Error(1)
}

func (m *mockGithubRepository) AddComment(ctx context.Context, number domain.PRNumber, body string) error {
	return m.Called(ctx, number, body).Error(0)
}

func boolPtr(v bool) *bool {
	return &v
}

// MockStateRepository is a mock implementation of StateRepository
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Save(ctx context.Context, state *domain.RunState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockStateRepository) Load(ctx context.Context, sessionID string) (*domain.RunState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunState), args.Error(1)
}

func (m *MockStateRepository) LoadLatest(ctx context.Context) (*domain.RunState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunState), args.Error(1)
}

func (m *MockStateRepository) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockStateRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

// Mock for RunLock
type mockRunLock struct {
	mock.Mock
}

func (m *mockRunLock) Acquire(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *mockRunLock) Release() error {
	return m.Called().Error(0)
}
