package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/raffihsieh/update-experimental/internal/domain"
	"go.uber.org/zap"
)

var refPattern = regexp.MustCompile(`^[a-zA-Z0-9._/\-]+$`)

// gitCLIService is the implementation of the GitCLIService interface.
type gitCLIService struct {
	runner  CommandRunner
	logger  *zap.Logger
	dir     string
	mode    string
	timeout time.Duration
	// preserved are clean exclude patterns anchored at the worktree root
	preserved []string

	versionOnce sync.Once
	version     *domain.GitVersion
	versionErr  error
}

// GitCLIOption customizes a GitCLIService
type GitCLIOption func(*gitCLIService)

// WithPreservedPaths keeps paths inside the worktree out of Clean. Relative
// paths are taken relative to the worktree; paths outside it are ignored.
func WithPreservedPaths(paths ...string) GitCLIOption {
	return func(s *gitCLIService) {
		for _, p := range paths {
			if pattern, ok := worktreePattern(s.dir, p); ok {
				s.preserved = append(s.preserved, pattern)
			}
		}
	}
}

// NewGitCLIService creates a GitCLIService running git in dir.
func NewGitCLIService(
	runner CommandRunner,
	logger *zap.Logger,
	dir, mergeTreeMode string,
	opts ...GitCLIOption,
) (GitCLIService, error) {
	if runner == nil {
		return nil, errors.New("command runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch mergeTreeMode {
	case "":
		mergeTreeMode = MergeTreeModeAuto
	case MergeTreeModeAuto, MergeTreeModeLegacy, MergeTreeModeWriteTree:
	default:
		return nil, fmt.Errorf("invalid merge-tree mode: %s", mergeTreeMode)
	}
	s := &gitCLIService{
		runner:  runner,
		logger:  logger,
		dir:     dir,
		mode:    mergeTreeMode,
		timeout: DefaultGitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// worktreePattern turns path into a clean exclude pattern such as "/.experimental-state/".
func worktreePattern(dir, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	rel := path
	if filepath.IsAbs(path) {
		root, err := filepath.Abs(dir)
		if err != nil {
			return "", false
		}
		if rel, err = filepath.Rel(root, path); err != nil {
			return "", false
		}
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return "/" + rel + "/", true
}

// sanitizeRef validates a ref or revision to prevent option injection.
func (s *gitCLIService) sanitizeRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("invalid ref: %s", ref)
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("invalid ref format: %s", ref)
	}
	if len(ref) > 255 {
		return fmt.Errorf("ref too long: maximum 255 characters")
	}
	return nil
}

// run executes git with the given arguments and returns the raw result.
func (s *gitCLIService) run(ctx context.Context, timeout time.Duration, args ...string) (CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := Command{Name: "git", Args: args, WorkingDirectory: s.dir}
	s.logger.Debug("running git", zap.String("command", cmd.String()))
	result, err := s.runner.Run(ctx, cmd)
	if err != nil {
		s.logger.Debug("git failed to run", zap.String("command", cmd.String()), zap.Error(err))
		return CommandResult{}, err
	}
	s.logger.Debug("git finished",
		zap.String("command", cmd.String()),
		zap.Int("exit_code", result.ExitCode))
	return result, nil
}

// exec runs git and turns a non-zero exit into a CommandError.
func (s *gitCLIService) exec(ctx context.Context, args ...string) (string, error) {
	result, err := s.run(ctx, s.timeout, args...)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", &CommandError{
			Command: Command{Name: "git", Args: args, WorkingDirectory: s.dir},
			Result:  result,
		}
	}
	return result.Stdout, nil
}

// Clean removes untracked and ignored files except the preserved paths.
func (s *gitCLIService) Clean(ctx context.Context) error {
	args := []string{"clean", "-fdx"}
	for _, pattern := range s.preserved {
		args = append(args, "-e", pattern)
	}
	if _, err := s.exec(ctx, args...); err != nil {
		return fmt.Errorf("failed to clean working tree: %w", err)
	}
	return nil
}

// DiscardChanges reverts modifications to tracked files.
func (s *gitCLIService) DiscardChanges(ctx context.Context) error {
	if _, err := s.exec(ctx, "checkout", "."); err != nil {
		return fmt.Errorf("failed to discard changes: %w", err)
	}
	return nil
}

// Checkout switches to branch.
func (s *gitCLIService) Checkout(ctx context.Context, branch string) error {
	if err := s.sanitizeRef(branch); err != nil {
		return err
	}
	if _, err := s.exec(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	return nil
}

// ResetHard resets the current branch, index and working tree to ref.
func (s *gitCLIService) ResetHard(ctx context.Context, ref string) error {
	if err := s.sanitizeRef(ref); err != nil {
		return err
	}
	if _, err := s.exec(ctx, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", ref, err)
	}
	return nil
}

// Rebase rebases the current branch onto the given revision.
func (s *gitCLIService) Rebase(ctx context.Context, onto string) error {
	if err := s.sanitizeRef(onto); err != nil {
		return err
	}
	if _, err := s.exec(ctx, "rebase", onto); err != nil {
		return fmt.Errorf("failed to rebase onto %s: %w", onto, err)
	}
	return nil
}

// AbortRebase aborts an in-progress rebase; it succeeds when none is running.
func (s *gitCLIService) AbortRebase(ctx context.Context) error {
	_, err := s.exec(ctx, "rebase", "--abort")
	if err != nil && !isNothingInProgress(err) {
		return fmt.Errorf("failed to abort rebase: %w", err)
	}
	return nil
}

// MergeNoFF merges branch into the current branch, always creating a merge commit.
func (s *gitCLIService) MergeNoFF(ctx context.Context, branch string) error {
	if err := s.sanitizeRef(branch); err != nil {
		return err
	}
	if _, err := s.exec(ctx, "merge", branch, "--no-ff", "--no-edit"); err != nil {
		return fmt.Errorf("failed to merge %s: %w", branch, err)
	}
	return nil
}

// AbortMerge aborts an in-progress merge; it succeeds when none is running.
func (s *gitCLIService) AbortMerge(ctx context.Context) error {
	_, err := s.exec(ctx, "merge", "--abort")
	if err != nil && !isNothingInProgress(err) {
		return fmt.Errorf("failed to abort merge: %w", err)
	}
	return nil
}

// SimulateMerge runs merge-tree without touching the working tree.
func (s *gitCLIService) SimulateMerge(ctx context.Context, base, branch, target string) (bool, error) {
	for _, ref := range []string{base, branch, target} {
		if err := s.sanitizeRef(ref); err != nil {
			return false, err
		}
	}
	writeTree, err := s.useWriteTree(ctx)
	if err != nil {
		return false, err
	}
	if writeTree {
		return s.simulateWriteTree(ctx, base, branch, target)
	}
	return s.simulateLegacy(ctx, base, branch, target)
}

// simulateLegacy uses the three-argument merge-tree, which prints conflict blocks inline.
func (s *gitCLIService) simulateLegacy(ctx context.Context, base, branch, target string) (bool, error) {
	out, err := s.exec(ctx, "merge-tree", base, branch, target)
	if err != nil {
		return false, fmt.Errorf("failed to simulate merge of %s into %s: %w", branch, target, err)
	}
	return HasConflictMarkers(out), nil
}

// simulateWriteTree uses merge-tree --write-tree: exit 1 means conflicts.
func (s *gitCLIService) simulateWriteTree(ctx context.Context, base, branch, target string) (bool, error) {
	args := []string{"merge-tree", "--write-tree", "--merge-base=" + base, target, branch}
	result, err := s.run(ctx, s.timeout, args...)
	if err != nil {
		return false, fmt.Errorf("failed to simulate merge of %s into %s: %w", branch, target, err)
	}
	switch result.ExitCode {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("failed to simulate merge of %s into %s: %w", branch, target, &CommandError{
			Command: Command{Name: "git", Args: args, WorkingDirectory: s.dir},
			Result:  result,
		})
	}
}

func (s *gitCLIService) useWriteTree(ctx context.Context) (bool, error) {
	switch s.mode {
	case MergeTreeModeLegacy:
		return false, nil
	case MergeTreeModeWriteTree:
		return true, nil
	}
	version, err := s.Version(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to detect merge-tree mode: %w", err)
	}
	return version.SupportsWriteTree(), nil
}

// Version returns the installed git version; the result is cached.
func (s *gitCLIService) Version(ctx context.Context) (*domain.GitVersion, error) {
	s.versionOnce.Do(func() {
		result, err := s.run(ctx, DefaultProbeTimeout, "version")
		if err != nil {
			s.versionErr = err
			return
		}
		if result.ExitCode != 0 {
			s.versionErr = &CommandError{Command: Command{Name: "git", Args: []string{"version"}}, Result: result}
			return
		}
		s.version, s.versionErr = domain.ParseGitVersion(result.Stdout)
		if s.versionErr == nil {
			s.logger.Debug("detected git version", zap.String("version", s.version.String()))
		}
	})
	return s.version, s.versionErr
}

// HasConflictMarkers reports whether legacy merge-tree output contains a conflict block.
// merge-tree prints merged content as diff lines, so the separator may carry a one
// character diff prefix.
func HasConflictMarkers(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) > 0 && (line[0] == '+' || line[0] == ' ' || line[0] == '-') {
			line = line[1:]
		}
		if line == conflictSeparator {
			return true
		}
	}
	return false
}

func isNothingInProgress(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	stderr := strings.ToLower(cmdErr.Result.Stderr)
	return strings.Contains(stderr, "no rebase in progress") ||
		strings.Contains(stderr, "there is no merge to abort") ||
		strings.Contains(stderr, "merge_head missing")
}
