package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// branchNameRegex matches valid git branch names
	branchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
	// remoteNameRegex matches valid git remote names
	remoteNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateBranchName validates a git branch name.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if len(branch) > 255 {
		return fmt.Errorf("branch name too long: %d characters (max: 255)", len(branch))
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with a dash: %s", branch)
	}
	if strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, "/") {
		return fmt.Errorf("branch name cannot start or end with slash: %s", branch)
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain consecutive dots: %s", branch)
	}
	if strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch name cannot end with .lock: %s", branch)
	}
	if !branchNameRegex.MatchString(branch) {
		return fmt.Errorf("invalid branch name format: %s", branch)
	}
	return nil
}

// ValidateRemoteName validates a git remote name.
func ValidateRemoteName(remote string) error {
	if remote == "" {
		return fmt.Errorf("remote name cannot be empty")
	}
	if strings.HasPrefix(remote, "-") || !remoteNameRegex.MatchString(remote) {
		return fmt.Errorf("invalid remote name: %s", remote)
	}
	return nil
}

// ValidateSettings checks the branch and remote names a run will touch.
// Dry runs never push, so they may run without a fork.
func ValidateSettings(s Settings, dryRun bool) error {
	for _, branch := range []string{s.MainlineBranch, s.ExperimentalBranch} {
		if err := ValidateBranchName(branch); err != nil {
			return err
		}
	}
	if s.MainlineBranch == s.ExperimentalBranch {
		return fmt.Errorf("experimental branch must differ from mainline: %s", s.MainlineBranch)
	}
	for _, remote := range []string{s.OriginRemote, s.ForkRemote} {
		if err := ValidateRemoteName(remote); err != nil {
			return err
		}
	}
	if s.ForkURL == "" && !dryRun {
		return fmt.Errorf("fork url cannot be empty")
	}
	return nil
}
