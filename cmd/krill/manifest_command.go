package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"krill/internal/manifest"
)

func newManifestCommand() *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:         "manifest",
		Short:       "Manifest utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	manifestCmd.AddCommand(newManifestValidateCommand())
	return manifestCmd
}

func newManifestValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <tsv>",
		Short: "Parse a manifest and summarize its work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			artifacts := 0
			for _, item := range m.Items {
				artifacts += len(item.Artifacts)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d items, %d artifacts, %s declared\n",
				len(m.Items), artifacts, humanize.IBytes(uint64(m.TotalBytes())))
			fmt.Fprintln(out, "manifest valid")
			return nil
		},
	}
}
