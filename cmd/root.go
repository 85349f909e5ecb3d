package cmd

import (
	"errors"
	"fmt"

	"github.com/raffihsieh/update-experimental/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrSetup marks failures that happen before the workflow starts
var ErrSetup = errors.New("setup failed")

var rootCmd = &cobra.Command{
	Use:   "update-experimental",
	Short: "Rebuild the experimental branch from enlisted pull requests",
	Long: `update-experimental rebases every enlisted pull request onto the mainline branch,
pushes the rebased copies to a fork and merges them, in order, into a freshly
recreated experimental branch.`,
	Version:       version.Summary(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// InitCommands registers all commands and binds the global flags to the configuration
func InitCommands() error {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: console or structured")
	for key, flag := range map[string]string{"log_level": "log-level", "log_format": "log-format"} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	})
	rootCmd.AddCommand(NewUpdateCmd(), NewRollbackCmd(), newVersionCmd())
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}
