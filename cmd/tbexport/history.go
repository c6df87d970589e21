package main

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/cli"
	"github.com/Veraticus/trial-balance-export/internal/storage"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListExportRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list export runs: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRuns(runs))
			return err
		},
	}
	cmd.Flags().Int("limit", storage.DefaultListLimit, "Number of runs to show")
	return cmd
}
