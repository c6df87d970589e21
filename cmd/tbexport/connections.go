package main

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/cli"
	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/spf13/cobra"
)

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List stored Zoho connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			conns, err := store.ListConnections(cmd.Context(), 0)
			if err != nil {
				return fmt.Errorf("failed to list connections: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderConnections(conns))
			return err
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <region>",
		Short: "Forget the stored token for a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := regionArg(args[0])
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteConnection(cmd.Context(), config.LoadUserEmail(), region); err != nil {
				return fmt.Errorf("failed to delete %s connection: %w", region, err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Removed connection for "+string(region)))
			return err
		},
	})

	return cmd
}
