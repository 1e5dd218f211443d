package main

import (
	"context"

	"github.com/spf13/cobra"

	"Bootcamp/internal/app"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-verify stale payments and repair inconsistent applications once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Sweeper.RunOnce(ctx)
			})
		},
	}
}
