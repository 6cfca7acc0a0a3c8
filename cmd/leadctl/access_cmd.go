package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/leadrouter/modules/leads/services"
)

func newAccessCmd() *cobra.Command {
	var (
		leadID int64
		viewer int64
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "access",
		Short: "Explain whether a user may open a lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			if leadID <= 0 || viewer <= 0 {
				return fmt.Errorf("--lead and --viewer are required")
			}
			m, err := services.ParseViewMode(mode)
			if err != nil {
				return err
			}
			rt, ctx, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			gate := rt.app.Service(services.AccessGate{}).(*services.AccessGate)
			decision, err := gate.Authorize(ctx, viewer, leadID, m)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), decision)
		},
	}

	cmd.Flags().Int64Var(&leadID, "lead", 0, "Lead id (required)")
	cmd.Flags().Int64Var(&viewer, "viewer", 0, "Viewer user id (required)")
	cmd.Flags().StringVar(&mode, "mode", string(services.ViewChat), "chat or supervision")
	return cmd
}
