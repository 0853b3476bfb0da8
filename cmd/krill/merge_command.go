package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"krill/internal/manifest"
	"krill/internal/merge"
	"krill/internal/tracker"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "merge <tool>",
		Short: "Combine outputs of all done items into batch-level tables",
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
			var m *manifest.Manifest
			if manifestPath != "" {
				if m, err = manifest.Load(manifestPath); err != nil {
					return err
				}
			}
			itemIDs := doneItems(states, m)

			out := cmd.OutOrStdout()
			for _, spec := range tool.MergeSpecs() {
				dest, err := merge.Run(spec, itemIDs, tool.OutputDir())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s (%d items)\n", dest, len(itemIDs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Order merged columns by this manifest instead of lexically")
	return cmd
}

// doneItems lists items in state done, in manifest order when a manifest is
// given and lexical order otherwise.
func doneItems(states map[string]tracker.State, m *manifest.Manifest) []string {
	done := make(map[string]bool, len(states))
	for id, state := range states {
		if state == tracker.StateOK {
			done[id] = true
		}
	}
	if m != nil {
		ordered := make([]string, 0, len(done))
		for _, item := range m.Items {
			if done[item.ID] {
				ordered = append(ordered, item.ID)
			}
		}
		return ordered
	}
	ids := make([]string, 0, len(done))
	for id := range done {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
