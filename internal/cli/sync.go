package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/chatarc/chatarc/internal/source"
	"github.com/chatarc/chatarc/internal/store"
	"github.com/chatarc/chatarc/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Dump       string
	Manifest   string
	Last       int
	FromID     int64
	ToID       int64
	Start      string
	End        string
	NoStoreRaw bool
	BatchSize  int
}

// manifest lists sync jobs for several sources in one file.
type manifest struct {
	Sources []manifestEntry `yaml:"sources"`
}

type manifestEntry struct {
	Ref    string `yaml:"ref"`
	Last   int    `yaml:"last"`
	FromID int64  `yaml:"from_id"`
	ToID   int64  `yaml:"to_id"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync [source-ref]",
		Short: "Fetch missing items into the archive",
		Long: `Sync brings the archive's coverage of a source up to the request.

New items beyond the stored boundary are always fetched first; older
history is backfilled only as far as the request demands. Progress is
committed chunk by chunk, so an interrupted sync resumes where it
stopped.

A source-ref is a numeric ID, @username, or exact title. With
--manifest, jobs for several sources are read from a YAML file instead.

Examples:
  chatarc sync @devchat --from-dump dump.jsonl --last 500
  chatarc sync 12345 --from-dump dump.jsonl --from-id 100 --to-id 900
  chatarc sync --manifest sources.yaml --from-dump dump.jsonl`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Dump, "from-dump", "", "JSONL dump to sync from (required)")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "YAML manifest of sources to sync")
	cmd.Flags().IntVar(&opts.Last, "last", 0, "cover at least the N most recent items")
	cmd.Flags().Int64Var(&opts.FromID, "from-id", 0, "cover items with ID >= from-id")
	cmd.Flags().Int64Var(&opts.ToID, "to-id", 0, "cover items with ID <= to-id")
	cmd.Flags().StringVar(&opts.Start, "start", "", "cover items dated on or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "cover items dated on or before (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&opts.NoStoreRaw, "no-store-raw", false, "do not store raw origin payloads")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "items per fetch chunk (overrides config)")
	_ = cmd.MarkFlagRequired("from-dump")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions, args []string) error {
	jobs, err := syncJobs(opts, args)
	if err != nil {
		return err
	}

	dump, err := source.OpenDump(opts.Dump)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open dump", err)
	}
	var history source.History = dump
	if opts.NoStoreRaw || !opts.cfg.Sync.StoreRaw {
		history = source.NoRaw(dump)
	}

	st, err := store.Open(opts.DBPath())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("error closing archive")
		}
	}()

	batch := opts.cfg.Sync.BatchSize
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}
	eng := syncer.New(st, history,
		syncer.WithBatchSize(batch),
		syncer.WithFloodThreshold(opts.cfg.FloodThreshold()),
		syncer.WithPacer(rate.NewLimiter(rate.Limit(opts.cfg.Sync.FetchPerSecond), 1)),
		syncer.WithLogger(log.Logger),
	)

	// Interrupt cancels between chunks; committed progress survives.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deferred := false
	for _, job := range jobs {
		src, err := dump.Resolve(ctx, job.ref)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("cannot resolve source %q", job.ref), err)
		}
		if err := st.PutSource(ctx, src); err != nil {
			return WrapExitError(ExitCommandError, "failed to record source", err)
		}

		log.Info().Str("source", src.Title).Int64("source_id", src.ID).Msg("syncing")
		res, err := eng.Sync(ctx, src.ID, job.cov)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("sync %q failed", job.ref), err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d new items (cursor %d..%d)\n",
			src.Title, res.Inserted, res.Cursor.Lowest, res.Cursor.Highest)
		if res.Status == syncer.StatusRetryLater {
			deferred = true
			fmt.Fprintf(cmd.OutOrStdout(), "%s: origin asked for a long pause; run sync again later\n", src.Title)
		}
	}

	if deferred {
		return NewExitError(ExitSyncDeferred, "sync deferred by origin rate limit")
	}
	return nil
}

type syncJob struct {
	ref string
	cov syncer.Coverage
}

// syncJobs builds the job list from either the positional ref plus
// coverage flags, or a manifest file.
func syncJobs(opts *SyncOptions, args []string) ([]syncJob, error) {
	if opts.Manifest != "" {
		if len(args) > 0 {
			return nil, NewExitError(ExitCommandError, "source-ref and --manifest are mutually exclusive")
		}
		return manifestJobs(opts.Manifest, opts.cfg.Sync.DefaultTarget)
	}

	if len(args) == 0 {
		return nil, NewExitError(ExitCommandError, "a source-ref or --manifest is required")
	}

	cov, err := buildCoverage(opts.Last, opts.FromID, opts.ToID, opts.Start, opts.End, opts.cfg.Sync.DefaultTarget)
	if err != nil {
		return nil, err
	}
	return []syncJob{{ref: args[0], cov: cov}}, nil
}

func manifestJobs(path string, defaultTarget int) ([]syncJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read manifest", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse manifest", err)
	}
	if len(m.Sources) == 0 {
		return nil, NewExitError(ExitCommandError, "manifest lists no sources")
	}

	jobs := make([]syncJob, 0, len(m.Sources))
	for i, entry := range m.Sources {
		if entry.Ref == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("manifest source %d has no ref", i+1))
		}
		cov, err := buildCoverage(entry.Last, entry.FromID, entry.ToID, entry.Start, entry.End, defaultTarget)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("manifest source %q", entry.Ref), err)
		}
		jobs = append(jobs, syncJob{ref: entry.Ref, cov: cov})
	}
	return jobs, nil
}

// buildCoverage maps the flag values onto one coverage form. With no
// flags set, the configured default target applies.
func buildCoverage(last int, fromID, toID int64, start, end string, defaultTarget int) (syncer.Coverage, error) {
	since, err := parseStartTime(start)
	if err != nil {
		return syncer.Coverage{}, WrapExitError(ExitCommandError, "bad --start", err)
	}
	until, err := parseEndTime(end)
	if err != nil {
		return syncer.Coverage{}, WrapExitError(ExitCommandError, "bad --end", err)
	}

	forms := 0
	if last > 0 {
		forms++
	}
	if fromID != 0 || toID != 0 {
		forms++
	}
	if !since.IsZero() || !until.IsZero() {
		forms++
	}
	if forms > 1 {
		return syncer.Coverage{}, NewExitError(ExitCommandError,
			"--last, id bounds, and date bounds are mutually exclusive")
	}

	var cov syncer.Coverage
	switch {
	case last > 0:
		cov = syncer.CoverLastN(last)
	case fromID != 0 || toID != 0:
		cov = syncer.CoverIDRange(fromID, toID)
	case !since.IsZero() || !until.IsZero():
		cov = syncer.CoverTimeRange(since, until)
	case defaultTarget > 0:
		cov = syncer.CoverLastN(defaultTarget)
	default:
		cov = syncer.TailOnly()
	}

	if err := cov.Validate(); err != nil {
		return syncer.Coverage{}, WrapExitError(ExitCommandError, "bad coverage flags", err)
	}
	return cov, nil
}
