package main

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/cli"
	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/spf13/cobra"
)

func orgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orgs <region>",
		Short: "List the Zoho Books organizations a connection can read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			region, err := regionArg(args[0])
			if err != nil {
				return err
			}
			client, _, err := initZoho()
			if err != nil {
				return err
			}
			sealer, err := config.LoadSealer()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			conn, err := store.GetConnection(ctx, config.LoadUserEmail(), region)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("no Zoho connection for %s; run `tbexport connect %s`", region, region), err)
			}
			refreshToken, err := sealer.Unseal(conn.RefreshTokenSealed)
			if err != nil {
				return fmt.Errorf("failed to unseal refresh token for %s: %w", region, err)
			}
			accessToken, err := client.AccessToken(ctx, region, refreshToken)
			if err != nil {
				return err
			}

			orgs, err := client.ListOrganizations(ctx, region, accessToken)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderOrganizations(region, orgs))
			return err
		},
	}
}
