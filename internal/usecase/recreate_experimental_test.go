package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecreateExperimentalUseCase_Execute(t *testing.T) {
	t.Run("Should replace an existing experimental branch", func(t *testing.T) {
		gitRepo := new(mockGitRepository)
		gitCLI := new(mockGitCLIService)
		uc := &RecreateExperimentalUseCase{GitRepo: gitRepo, GitCLI: gitCLI, Logger: zap.NewNop()}
		ctx := context.Background()
		gitRepo.On("BranchExists", ctx, "experimental").Return(true, nil)
		gitRepo.On("BranchHead", ctx, "experimental").Return("cafe", nil)
		gitCLI.On("Checkout", ctx, "master").Return(nil)
		gitRepo.On("DeleteBranch", ctx, "experimental").Return(nil)
		gitRepo.On("CreateBranch", ctx, "experimental", "master").Return(nil)
		gitCLI.On("Checkout", ctx, "experimental").Return(nil)
		previous, err := uc.Execute(ctx, "master", "experimental")
		require.NoError(t, err)
		assert.Equal(t, "cafe", previous)
		gitRepo.AssertExpectations(t)
		gitCLI.AssertExpectations(t)
	})
	t.Run("Should create the branch when it does not exist", func(t *testing.T) {
		gitRepo := new(mockGitRepository)
		gitCLI := new(mockGitCLIService)
		uc := &RecreateExperimentalUseCase{GitRepo: gitRepo, GitCLI: gitCLI, Logger: zap.NewNop()}
		ctx := context.Background()
		gitRepo.On("BranchExists", ctx, "experimental").Return(false, nil)
		gitCLI.On("Checkout", ctx, "master").Return(nil)
		gitRepo.On("CreateBranch", ctx, "experimental", "master").Return(nil)
		gitCLI.On("Checkout", ctx, "experimental").Return(nil)
		previous, err := uc.Execute(ctx, "master", "experimental")
		require.NoError(t, err)
		assert.Empty(t, previous)
		gitRepo.AssertNotCalled(t, "DeleteBranch", ctx, "experimental")
	})
	t.Run("Should fail when the branch cannot be created", func(t *testing.T) {
		gitRepo := new(mockGitRepository)
		gitCLI := new(mockGitCLIService)
		uc := &RecreateExperimentalUseCase{GitRepo: gitRepo, GitCLI: gitCLI, Logger: zap.NewNop()}
		ctx := context.Background()
		gitRepo.On("BranchExists", ctx, "experimental").Return(false, nil)
		gitCLI.On("Checkout", ctx, "master").Return(nil)
		gitRepo.On("CreateBranch", ctx, "experimental", "master").Return(errors.New("bad revision"))
		_, err := uc.Execute(ctx, "master", "experimental")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create experimental")
	})
}
