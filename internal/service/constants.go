package service

import "time"

// Timeout constants for service operations
const (
	// DefaultGitTimeout bounds a single git invocation; rebases of large PRs are the slow case
	DefaultGitTimeout = 10 * time.Minute
	// DefaultProbeTimeout is the timeout for quick informational commands such as `git version`
	DefaultProbeTimeout = 30 * time.Second
)

// conflictSeparator is the center line of a textual conflict block.
const conflictSeparator = "======="

// Merge-tree modes
const (
	MergeTreeModeAuto      = "auto"
	MergeTreeModeLegacy    = "legacy"
	MergeTreeModeWriteTree = "write-tree"
)
