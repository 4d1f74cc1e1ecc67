package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatarc/chatarc/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "init [path]",
		Short:         "Write a sample configuration file",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		// Init must not require a loadable config first.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "chatarc.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Init(path); err != nil {
				return WrapExitError(ExitCommandError, "init failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	return cmd
}
