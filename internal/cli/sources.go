package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatarc/chatarc/internal/store"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sources",
		Short:         "List archived sources",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(rootOpts.DBPath())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open archive", err)
			}
			defer st.Close()

			infos, err := st.ListSources(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list sources", err)
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sources archived yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tUSERNAME\tKIND\tITEMS\tRANGE\tLAST SYNC")
			for _, info := range infos {
				username := ""
				if info.Source.Username != "" {
					username = "@" + info.Source.Username
				}
				rng := "-"
				if !info.Cursor.Empty() {
					rng = fmt.Sprintf("%d..%d", info.Cursor.Lowest, info.Cursor.Highest)
				}
				lastSync := "never"
				if !info.Cursor.LastSync.IsZero() {
					lastSync = info.Cursor.LastSync.UTC().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
					info.Source.ID, info.Source.Title, username, info.Source.Kind,
					info.Count, rng, lastSync)
			}
			return w.Flush()
		},
	}
	return cmd
}
