package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"krill/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <tool>",
		Short: "Check the named profiler's binaries and reference databases",
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

			reqs := tool.Requirements()
			statuses := deps.CheckBinaries(reqs.Binaries)
			statuses = append(statuses, deps.CheckDatabases(reqs.Databases)...)

			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				available := "missing"
				if status.Available {
					available = "ok"
				}
				detail := status.Detail
				if detail == "" {
					detail = status.Command
				}
				rows = append(rows, []string{status.Name, stateLabel(available), detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Dependency", "Status", "Detail"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
				isTerminal(os.Stdout)))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing dependencies: %v", missing)
			}
			return nil
		},
	}
}
