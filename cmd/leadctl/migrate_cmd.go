package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect the leads schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := persistence.MigrationDirection(args[0])
			switch direction {
			case persistence.MigrateUp, persistence.MigrateDown, persistence.MigrateStatus:
			default:
				return fmt.Errorf("unknown migration direction %q", args[0])
			}
			pool, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			return persistence.Migrate(cmd.Context(), pool, direction, cmd.OutOrStdout())
		},
	}
}
