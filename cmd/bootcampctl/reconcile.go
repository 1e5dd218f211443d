package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"Bootcamp/internal/app"
	"Bootcamp/internal/services"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [application-id]",
		Short: "Diagnose an application and repair what is inconsistent",
		Long: `Without --actions every repair the diagnosis calls for is run.
With --actions only the named repairs run, in order:
  create_missing_status, sync_status, create_payment_record,
  create_enrollment, grant_key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid application id %q: %w", args[0], err)
			}
			actions, _ := cmd.Flags().GetStringSlice("actions")
			for _, a := range actions {
				if !services.KnownAction(a) {
					return fmt.Errorf("unknown action %q", a)
				}
			}

			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				if len(actions) > 0 {
					return a.Reconciler.RunActions(ctx, appID, actions)
				}
				return a.Reconciler.ReconcileApplicationStatus(ctx, appID, uuid.Nil)
			})
		},
	}

	cmd.Flags().StringSliceP("actions", "a", nil, "Repairs to run instead of the diagnosed ones")

	return cmd
}
