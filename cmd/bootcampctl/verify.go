package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"Bootcamp/internal/app"
	"Bootcamp/internal/models"
	"Bootcamp/internal/services"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify one payment through the store, gateway or chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reference, _ := cmd.Flags().GetString("reference")
			hash, _ := cmd.Flags().GetString("hash")
			rawApp, _ := cmd.Flags().GetString("app")
			method, _ := cmd.Flags().GetString("method")

			req := services.VerifyRequest{
				Reference:       reference,
				TransactionHash: hash,
				Method:          models.PaymentMethod(method),
			}
			if rawApp != "" {
				id, err := uuid.Parse(rawApp)
				if err != nil {
					return fmt.Errorf("invalid application id %q: %w", rawApp, err)
				}
				req.ApplicationID = id
			}
			if req.Reference == "" && req.TransactionHash == "" && req.ApplicationID == uuid.Nil {
				return errors.New("one of --reference, --hash or --app is required")
			}

			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Router.VerifyPayment(ctx, req)
			})
		},
	}

	cmd.Flags().StringP("reference", "r", "", "Payment reference")
	cmd.Flags().String("hash", "", "Blockchain transaction hash")
	cmd.Flags().String("app", "", "Application id")
	cmd.Flags().StringP("method", "m", "", "paystack or blockchain (detected when empty)")

	return cmd
}
