package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/leadrouter/modules/leads/services"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

func newAssignCmd() *cobra.Command {
	var (
		leadID  int64
		userID  int64
		actorID int64
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Allocate a lead, or hand it to --user when given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if leadID <= 0 {
				return fmt.Errorf("--lead is required")
			}
			rt, ctx, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if actorID > 0 {
				ctx = composables.WithActor(ctx, actorID)
			}

			svc := rt.app.Service(services.AssignmentService{}).(*services.AssignmentService)
			if userID > 0 {
				a, err := svc.AssignToUser(ctx, leadID, userID, actorID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), a)
			}
			res, err := svc.Assign(ctx, leadID, actorID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int64Var(&leadID, "lead", 0, "Lead id (required)")
	cmd.Flags().Int64Var(&userID, "user", 0, "Assign to this user instead of running the allocator")
	cmd.Flags().Int64Var(&actorID, "actor", 0, "Acting user id; 0 runs as system")
	return cmd
}
