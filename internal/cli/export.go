package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatarc/chatarc/internal/export"
	"github.com/chatarc/chatarc/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Format     string
	Output     string
	Last       int
	SinceID    int64
	UntilID    int64
	Start      string
	End        string
	TZ         string
	IncludeRaw bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <source-ref>",
		Short: "Render archived items to txt or jsonl",
		Long: `Export renders a source's archived items, oldest first.

txt is a readable transcript, one line per item. jsonl is one JSON
object per item and can be synced back with sync --from-dump.

Examples:
  chatarc export @devchat --format txt -o devchat.txt
  chatarc export @devchat --format jsonl --last 1000
  chatarc export 12345 --start 2024-01-01 --end 2024-03-31 --tz Europe/Berlin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "txt", "output format (txt|jsonl)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&opts.Last, "last", 0, "export only the N newest items")
	cmd.Flags().Int64Var(&opts.SinceID, "since-id", 0, "export items with ID above since-id")
	cmd.Flags().Int64Var(&opts.UntilID, "until-id", 0, "export items with ID below until-id")
	cmd.Flags().StringVar(&opts.Start, "start", "", "export items dated on or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "export items dated on or before (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.TZ, "tz", "", "IANA timezone for txt timestamps (overrides config)")
	cmd.Flags().BoolVar(&opts.IncludeRaw, "include-raw", false, "carry raw payloads into jsonl output")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, ref string) error {
	if opts.Format != "txt" && opts.Format != "jsonl" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be txt or jsonl", opts.Format))
	}

	filter, err := exportFilter(opts)
	if err != nil {
		return err
	}

	tz, err := exportTimezone(opts)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.DBPath())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	src, err := resolveStoredSource(ctx, st, ref)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot resolve source", err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	var w export.Writer
	switch opts.Format {
	case "txt":
		w, err = export.NewTXT(out, src, tz)
		if err != nil {
			return WrapExitError(ExitCommandError, "export failed", err)
		}
	case "jsonl":
		w = export.NewJSONL(out, src, opts.IncludeRaw)
	}

	if err := export.Run(ctx, st, src.ID, filter, w); err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}
	return nil
}

func exportFilter(opts *ExportOptions) (store.ItemFilter, error) {
	start, err := parseStartTime(opts.Start)
	if err != nil {
		return store.ItemFilter{}, WrapExitError(ExitCommandError, "bad --start", err)
	}
	end, err := parseEndTime(opts.End)
	if err != nil {
		return store.ItemFilter{}, WrapExitError(ExitCommandError, "bad --end", err)
	}

	f := store.ItemFilter{
		SinceID: opts.SinceID,
		UntilID: opts.UntilID,
		Start:   start,
		End:     end,
		LastN:   opts.Last,
	}
	if err := f.Validate(); err != nil {
		return store.ItemFilter{}, WrapExitError(ExitCommandError, "bad filter flags", err)
	}
	return f, nil
}

func exportTimezone(opts *ExportOptions) (*time.Location, error) {
	if opts.TZ != "" {
		loc, err := time.LoadLocation(opts.TZ)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "bad --tz", err)
		}
		return loc, nil
	}
	loc, err := opts.cfg.ExportLocation()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "bad configured timezone", err)
	}
	return loc, nil
}
