package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"Bootcamp/internal/app"
	"Bootcamp/internal/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "bootcampctl",
		Short:   "Operator tools for bootcamp payments and enrollments",
		Version: Version,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp builds the services, runs fn and prints its result as JSON.
func withApp(fn func(ctx context.Context, a *app.App) (any, error)) error {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
