package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"krill/internal/progress"
	"krill/internal/tracker"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <tool>",
		Short: "Show per-item terminal state and attempt history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tool, err := toolByName(cfg, args[0])
			if err != nil {
				return err
			}
			store, err := tracker.Open(cfg, tool.Name())
			if err != nil {
				return err
			}
			defer store.Close()

			states, err := store.States(cmd.Context())
			if err != nil {
				return fmt.Errorf("read item states: %w", err)
			}
			records, err := progress.ReadLog(cfg.ProgressLogPath(tool.Name()))
			if err != nil {
				return err
			}

			rows := statusRows(cmd, states, records, store)
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "no recorded state for %s\n", tool.Name())
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Item", "State", "Attempts", "Exit", "Reason", "Last Finished"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				isTerminal(os.Stdout)))
			return nil
		},
	}
}

func statusRows(cmd *cobra.Command, states map[string]tracker.State, records []progress.Record, store tracker.Store) [][]string {
	attempts := make(map[string]int)
	latest := progress.Latest(records)
	for _, record := range records {
		attempts[record.ItemID]++
	}

	ids := make([]string, 0, len(states))
	seen := make(map[string]bool, len(states))
	for id := range states {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range latest {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		state := "attempted"
		switch states[id] {
		case tracker.StateOK:
			state = "done"
		case tracker.StateFailed:
			state = "failed"
		}
		exitCode, reason, finished := "", "", ""
		if states[id] == tracker.StateFailed {
			if failure, ok, err := store.Failure(cmd.Context(), id); err == nil && ok {
				exitCode = strconv.Itoa(failure.ExitCode)
				reason = failure.Reason
			}
		}
		if record, ok := latest[id]; ok && !record.FinishedAt.IsZero() {
			finished = record.FinishedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			id, stateLabel(state), strconv.Itoa(attempts[id]), exitCode, reason, finished,
		})
	}
	return rows
}
