// Package cli wires the chatarc commands: sync, export, sources, info,
// and init. Commands talk to the record store and, for sync, a history
// source; all archive semantics live in the internal packages they call.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chatarc/chatarc/internal/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose    bool
	Quiet      bool
	Database   string
	ConfigPath string

	cfg *config.Config
}

// Config returns the loaded configuration.
func (o *RootOptions) Config() *config.Config {
	return o.cfg
}

// DBPath returns the store path, with the --db flag overriding config.
func (o *RootOptions) DBPath() string {
	if o.Database != "" {
		return o.Database
	}
	return o.cfg.DB.Path
}

// NewRootCommand creates the root command for the chatarc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chatarc",
		Short: "chatarc - incremental message archiver",
		Long: `chatarc maintains a local, queryable archive of message streams.

Syncs are incremental and resumable: each run fetches only what the
archive is missing, and an interrupted run loses at most one chunk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.cfg = cfg

			level := zerolog.InfoLevel
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			if opts.Quiet {
				level = zerolog.ErrorLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "errors only")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite archive (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSourcesCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))

	return cmd
}
