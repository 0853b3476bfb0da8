package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"krill/internal/tracker"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <tool> [item-id...]",
		Short: "Clear failure markers so the next run re-attempts those items",
		Args:  cobra.MinimumNArgs(1),
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

			ids := args[1:]
			if len(ids) == 0 {
				states, err := store.States(cmd.Context())
				if err != nil {
					return fmt.Errorf("read item states: %w", err)
				}
				for id, state := range states {
					if state == tracker.StateFailed {
						ids = append(ids, id)
					}
				}
				sort.Strings(ids)
			}

			out := cmd.OutOrStdout()
			for _, id := range ids {
				if err := store.ClearFailed(cmd.Context(), id); err != nil {
					return fmt.Errorf("clear failure for %s: %w", id, err)
				}
				fmt.Fprintf(out, "cleared failure marker for %s\n", id)
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, "no failed items recorded")
			}
			return nil
		},
	}
}
