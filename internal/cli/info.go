package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatarc/chatarc/internal/store"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "info <source-ref>",
		Short:         "Show one source's archive state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(rootOpts.DBPath())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open archive", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			src, err := resolveStoredSource(ctx, st, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot resolve source", err)
			}

			cur, err := st.GetCursor(ctx, src.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read cursor", err)
			}
			count, err := st.ItemCount(ctx, src.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count items", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %d\n", src.ID)
			fmt.Fprintf(out, "title:    %s\n", src.Title)
			if src.Username != "" {
				fmt.Fprintf(out, "username: @%s\n", src.Username)
			}
			fmt.Fprintf(out, "kind:     %s\n", src.Kind)
			fmt.Fprintf(out, "items:    %d\n", count)
			if cur.Empty() {
				fmt.Fprintln(out, "range:    empty (never synced)")
				return nil
			}
			fmt.Fprintf(out, "range:    %d..%d\n", cur.Lowest, cur.Highest)
			if !cur.LastSync.IsZero() {
				fmt.Fprintf(out, "synced:   %s\n", cur.LastSync.UTC().Format("2006-01-02 15:04:05 MST"))
			}

			if oldest, ok, err := st.OldestItemTime(ctx, src.ID); err == nil && ok {
				fmt.Fprintf(out, "oldest:   %s\n", oldest.UTC().Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
	return cmd
}
