package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRollbackCmd creates the rollback command
func NewRollbackCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore local branches from a saved update session",
		Long: `Restore local branches from a saved update session.

Sessions are saved by runs started with --enable-rollback. Force pushes to the
fork cannot be undone and are only reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newContainer(false)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrSetup, err)
			}
			defer c.close()
			return c.orchestrator().Rollback(cmd.Context(), sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session ID to rollback (uses latest if not specified)")
	return cmd
}
