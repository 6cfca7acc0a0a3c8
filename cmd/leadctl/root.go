package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "leadctl",
		Short:         "Lead routing operations: migrations, distribution reports, manual assignment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSimulateCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newAssignCmd())
	cmd.AddCommand(newAccessCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
