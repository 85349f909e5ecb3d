package domain

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// minWriteTreeVersion is the first git release whose `merge-tree --write-tree` accepts --merge-base.
var minWriteTreeVersion = semver.MustParse("2.40.0")

var gitVersionPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// GitVersion wraps semver.Version for the installed git binary.
type GitVersion struct {
	*semver.Version
}

// ParseGitVersion extracts the version from `git version` output,
// e.g. "git version 2.39.3 (Apple Git-145)".
func ParseGitVersion(output string) (*GitVersion, error) {
	match := gitVersionPattern.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("no version found in %q", output)
	}
	v, err := semver.NewVersion(match)
	if err != nil {
		return nil, fmt.Errorf("failed to parse git version %q: %w", match, err)
	}
	return &GitVersion{v}, nil
}

// SupportsWriteTree reports whether merge-tree can run in write-tree mode.
func (v *GitVersion) SupportsWriteTree() bool {
	return !v.LessThan(minWriteTreeVersion)
}

// String returns the version without prefix.
func (v *GitVersion) String() string {
	return v.Version.String()
}
