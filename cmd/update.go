package cmd

import (
	"fmt"

	"github.com/raffihsieh/update-experimental/internal/orchestrator"
	"github.com/spf13/cobra"
)

// NewUpdateCmd creates the update command
func NewUpdateCmd() *cobra.Command {
	var (
		trigger        string
		dryRun         bool
		ciOutput       bool
		enableRollback bool
	)
	cmd := &cobra.Command{
		Use:   "update [PR...]",
		Short: "Rebase enlisted PRs and rebuild the experimental branch",
		Long: `Rebase enlisted pull requests and rebuild the experimental branch.

The PR numbers are merged in the order given. Nothing happens unless the
triggering PR (--trigger, or SOURCE_ISSUE / SYSTEM_PULLREQUEST_PULLREQUESTNUMBER)
is one of them. If the triggering PR conflicts with the mainline branch a
comment is posted on it and the command fails; if another enlisted PR
conflicts, the run gives up and leaves the experimental branch untouched.

With --enable-rollback the local branches are restored when a step fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer(!dryRun)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrSetup, err)
			}
			defer c.close()
			if !cmd.Flags().Changed("trigger") {
				trigger = c.cfg.TriggerPR
			}
			cfg := orchestrator.UpdateConfig{
				Enlisted:       args,
				Trigger:        trigger,
				DryRun:         dryRun,
				CIOutput:       ciOutput,
				EnableRollback: enableRollback,
			}
			return c.orchestrator().Execute(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "PR number that triggered the run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Rebuild locally without pushing or commenting")
	cmd.Flags().BoolVar(&ciOutput, "ci-output", false, "Output in CI-friendly format")
	cmd.Flags().BoolVar(&enableRollback, "enable-rollback", false, "Enable automatic rollback on failure")
	return cmd
}
