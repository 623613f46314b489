package main

import (
	"fmt"

	"github.com/kiranshivaraju/storepulse/pkg/client"
	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Read report snapshots",
	}

	var q client.SnapshotQuery
	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest snapshot for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			snap, err := c.LatestSnapshot(cmd.Context(), q)
			if err != nil {
				return err
			}
			if snap == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshot yet for this scope")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	latest.Flags().StringVar(&q.ScopeType, "scope-type", "network", "network, region or store")
	latest.Flags().StringVar(&q.ScopeKey, "scope-key", "", "region code or store id")
	latest.Flags().StringVar(&q.ISOWeek, "iso-week", "", "fiscal week label")
	latest.Flags().StringVar(&q.MonthKey, "month-key", "", "month in YYYY-MM form")
	cmd.AddCommand(latest)
	return cmd
}
