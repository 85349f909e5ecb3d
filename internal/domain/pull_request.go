package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPRNumber is returned when an enlisted entry is not a positive pull request number.
var ErrInvalidPRNumber = errors.New("invalid PR number")

// PRNumber identifies a pull request on the code host.
type PRNumber int

// ParsePRNumber parses a raw enlisted entry.
func ParsePRNumber(raw string) (PRNumber, error) {
	trimmed := strings.TrimSpace(raw)
	n, err := strconv.Atoi(trimmed)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPRNumber, raw)
	}
	return PRNumber(n), nil
}

// String returns the decimal form, which is also the local branch name for the PR.
func (n PRNumber) String() string {
	return strconv.Itoa(int(n))
}

// BranchName is the local (and fork) branch holding the rebased copy of the PR.
func (n PRNumber) BranchName() string {
	return n.String()
}

// BranchRef is the fully qualified local branch ref. Numeric branch names are
// also valid abbreviated hashes, so git commands get the full ref.
func (n PRNumber) BranchRef() string {
	return BranchRef(n.BranchName())
}

// BranchRef qualifies a local branch name as refs/heads/<name>.
func BranchRef(branch string) string {
	return "refs/heads/" + branch
}

// PullHeadRef is the upstream ref GitHub exposes for the PR head.
func (n PRNumber) PullHeadRef() string {
	return fmt.Sprintf("refs/pull/%d/head", int(n))
}

// PullRequest holds the code host view of an enlisted PR.
type PullRequest struct {
	Number  PRNumber
	HeadRef string
	State   string
	// Rebaseable is nil while the host is still computing mergeability.
	Rebaseable *bool
}

// MergeabilityKnown reports whether the host has finished computing rebaseability.
func (pr *PullRequest) MergeabilityKnown() bool {
	return pr != nil && pr.Rebaseable != nil
}

// IsRebaseable reports whether the PR rebases cleanly onto its base.
// Unknown mergeability is treated as not rebaseable.
func (pr *PullRequest) IsRebaseable() bool {
	return pr.MergeabilityKnown() && *pr.Rebaseable
}
