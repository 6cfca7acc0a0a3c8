package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/leadrouter/modules/leads/services"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's allocation against configured weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, ctx, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			dist := rt.app.Service(services.DistributionService{}).(*services.DistributionService)
			stats, err := dist.Stats(ctx, 0)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}
