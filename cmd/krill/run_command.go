package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"krill/internal/batch"
	"krill/internal/fetch"
	"krill/internal/logging"
	"krill/internal/manifest"
	"krill/internal/tracker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string
	var keepInputs bool
	var skipFailed bool
	var retryCompleted bool
	var threads int

	cmd := &cobra.Command{
		Use:   "run <tool>",
		Short: "Fetch and process every manifest item with the named profiler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("keep-inputs") {
				cfg.Batch.KeepInputs = keepInputs
			}
			if cmd.Flags().Changed("skip-failed") {
				cfg.Batch.SkipFailed = skipFailed
			}
			if cmd.Flags().Changed("retry-completed") {
				cfg.Batch.RetryCompleted = retryCompleted
			}
			if cmd.Flags().Changed("threads") {
				cfg.Batch.Threads = threads
			}

			tool, err := toolByName(cfg, args[0])
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			store, err := tracker.Open(cfg, tool.Name())
			if err != nil {
				return err
			}
			defer store.Close()

			fetchOpts := []fetch.Option{fetch.WithLogger(logger)}
			if isTerminal(os.Stdout) {
				fetchOpts = append(fetchOpts, fetch.WithProgress(downloadBar()))
			}
			orch := batch.New(cfg, tool, store,
				batch.WithLogger(logger),
				batch.WithFetcher(fetch.New(cfg.Fetch, fetchOpts...)))

			summary, runErr := orch.Run(cmd.Context(), m)
			printSummary(cmd, summary)
			return runErr
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Manifest TSV describing the work items")
	cmd.Flags().BoolVar(&keepInputs, "keep-inputs", false, "Retain fetched inputs after each item")
	cmd.Flags().BoolVar(&skipFailed, "skip-failed", true, "Skip items a previous run marked failed")
	cmd.Flags().BoolVar(&retryCompleted, "retry-completed", false, "Re-process items already marked done")
	cmd.Flags().IntVar(&threads, "threads", 0, "Threads passed to the profiler")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

// downloadBar renders one byte-progress bar per artifact on an interactive
// terminal.
func downloadBar() func(fetch.Progress) {
	var bar *progressbar.ProgressBar
	var current string
	return func(p fetch.Progress) {
		if bar == nil || current != p.Name {
			total := p.Total
			if total == 0 {
				total = -1
			}
			bar = progressbar.DefaultBytes(total, p.Name)
			current = p.Name
		}
		_ = bar.Set64(p.Downloaded)
	}
}

func printSummary(cmd *cobra.Command, summary batch.Summary) {
	rows := make([][]string, 0, len(summary.Results))
	for _, result := range summary.Results {
		reason := result.Reason
		exitCode := ""
		if result.State == batch.StateFailed {
			exitCode = strconv.Itoa(result.ExitCode)
		}
		rows = append(rows, []string{result.ID, stateLabel(string(result.State)), exitCode, reason})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Item", "State", "Exit", "Reason"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		isTerminal(os.Stdout)))
	fmt.Fprintf(out, "run %s: %d done, %d failed, %d skipped (done), %d skipped (failed)\n",
		summary.RunID, summary.Done, summary.Failed, summary.SkippedDone, summary.SkippedFailed)
}

func isTerminal(file *os.File) bool {
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
