package orchestrator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gitFixture is a working clone of a bare origin that exposes PR heads under refs/pull/<N>/head
type gitFixture struct {
	t      *testing.T
	origin string
	work   string
	base   string
}

func newGitFixture(t *testing.T) *gitFixture {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	root := t.TempDir()
	f := &gitFixture{
		t:      t,
		origin: filepath.Join(root, "origin.git"),
		work:   filepath.Join(root, "work"),
	}
	f.git(root, "init", "-q", "--bare", f.origin)
	f.git(root, "init", "-q", f.work)
	f.git(f.work, "symbolic-ref", "HEAD", "refs/heads/master")
	f.commit("README.md", "experiments\n", "initial")
	f.git(f.work, "remote", "add", "origin", f.origin)
	f.git(f.work, "push", "-q", "origin", "master")
	f.base = f.rev("HEAD")
	return f
}

func (f *gitFixture) git(dir string, args ...string) string {
	f.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=dev", "GIT_AUTHOR_EMAIL=dev@example.com",
		"GIT_COMMITTER_NAME=dev", "GIT_COMMITTER_EMAIL=dev@example.com",
		"GIT_CONFIG_NOSYSTEM=1")
	out, err := cmd.CombinedOutput()
	require.NoError(f.t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func (f *gitFixture) rev(revision string) string {
	f.t.Helper()
	return f.git(f.work, "rev-parse", "--verify", revision)
}

func (f *gitFixture) commit(file, content, message string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(filepath.Join(f.work, file), []byte(content), 0o644))
	f.git(f.work, "add", file)
	f.git(f.work, "commit", "-q", "-m", message)
}

// openPR pushes a commit on top of the initial mainline commit as refs/pull/<n>/head
func (f *gitFixture) openPR(n, file, content string) {
	f.t.Helper()
	f.git(f.work, "checkout", "-q", "-b", "pr-"+n, f.base)
	f.commit(file, content, "PR "+n)
	f.git(f.work, "push", "-q", "origin", "HEAD:refs/pull/"+n+"/head")
	f.git(f.work, "checkout", "-q", "master")
}

func (f *gitFixture) orchestrator(stateDir string, out *bytes.Buffer) (*UpdateExperimentalOrchestrator, repository.GitRepository, repository.StateRepository) {
	f.t.Helper()
	gitRepo, err := repository.NewGitRepository(f.work, "", nil)
	require.NoError(f.t, err)
	gitCLI, err := service.NewGitCLIService(service.NewOSCommandRunner(), nil, f.work,
		service.MergeTreeModeAuto, service.WithPreservedPaths(stateDir))
	require.NoError(f.t, err)
	stateRepo := repository.NewJSONStateRepository(afero.NewOsFs(), stateDir, nil)
	orch := NewUpdateExperimentalOrchestrator(Dependencies{
		GitRepo:    gitRepo,
		GitCLI:     gitCLI,
		GithubRepo: repository.NewGithubNoopRepository("microsoft", "TypeScript"),
		StateRepo:  stateRepo,
		RunLock:    repository.NewRunLock(stateDir, nil),
		Out:        out,
	}, Settings{
		MainlineBranch:     "master",
		ExperimentalBranch: "experimental",
		OriginRemote:       "origin",
		ForkRemote:         "fork",
		GitUserName:        "bot",
		GitUserEmail:       "bot@example.com",
	})
	return orch, gitRepo, stateRepo
}

func TestUpdateExperimentalOrchestrator_DryRunAgainstRealRepository(t *testing.T) {
	f := newGitFixture(t)
	f.openPR("71", "feature-71.txt", "seventy-one\n")
	f.openPR("72", "feature-72.txt", "seventy-two\n")
	// 73 adds the same file as 71 with other content
	f.openPR("73", "feature-71.txt", "seventy-three\n")
	f.commit("mainline.txt", "moved on\n", "advance mainline")
	f.git(f.work, "push", "-q", "origin", "master")
	mainline := f.rev("refs/heads/master")

	ctx := context.Background()
	stateDir := filepath.Join(f.work, repository.DefaultStateDir)
	scratch := filepath.Join(f.work, "scratch.txt")
	require.NoError(t, os.WriteFile(scratch, []byte("leftover"), 0o644))
	out := new(bytes.Buffer)
	orch, gitRepo, stateRepo := f.orchestrator(stateDir, out)

	var first *domain.RunState
	t.Run("Should rebuild experimental with numeric PR branches in enlisted order", func(t *testing.T) {
		err := orch.Execute(ctx, UpdateConfig{
			Enlisted:       []string{"71", "72"},
			Trigger:        "71",
			DryRun:         true,
			EnableRollback: true,
		})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Dry run complete")
		assert.NoFileExists(t, scratch)

		head71 := f.rev("refs/heads/71")
		head72 := f.rev("refs/heads/72")
		f.git(f.work, "merge-base", "--is-ancestor", mainline, head71)
		f.git(f.work, "merge-base", "--is-ancestor", mainline, head72)
		assert.Equal(t, head72, f.rev("refs/heads/experimental^2"))
		assert.Equal(t, head71, f.rev("refs/heads/experimental^1^2"))
		assert.Equal(t, mainline, f.rev("refs/heads/experimental^1^1"))

		assert.FileExists(t, filepath.Join(stateDir, "run.lock"))
		latest, err := stateRepo.LoadLatest(ctx)
		require.NoError(t, err)
		first = latest
		assert.Equal(t, domain.WorkflowStatusCompleted, first.Status)
	})

	t.Run("Should classify conflicting experiments and restore the previous experimental branch", func(t *testing.T) {
		require.NotNil(t, first)
		previous := f.rev("refs/heads/experimental")
		previous71 := f.rev("refs/heads/71")
		err := orch.Execute(ctx, UpdateConfig{
			Enlisted:       []string{"71", "73"},
			Trigger:        "73",
			DryRun:         true,
			EnableRollback: true,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrExperimentConflict)
		assert.Contains(t, err.Error(), "PR 73 with other experiment")

		head, err := gitRepo.BranchHead(ctx, "experimental")
		require.NoError(t, err)
		assert.Equal(t, previous, head)
		assert.Equal(t, previous71, f.rev("refs/heads/71"))
		exists, err := gitRepo.BranchExists(ctx, "73")
		require.NoError(t, err)
		assert.False(t, exists)
		current, err := gitRepo.CurrentBranch(ctx)
		require.NoError(t, err)
		assert.Equal(t, "experimental", current)

		assert.FileExists(t, filepath.Join(stateDir, "run.lock"))
		kept, err := stateRepo.Exists(ctx, first.SessionID)
		require.NoError(t, err)
		assert.True(t, kept)
	})
}
