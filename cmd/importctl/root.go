package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagTenant string
	flagUser   string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importctl",
		Short: "Operator CLI for the customer import pipeline",
	}
	cmd.PersistentFlags().StringVar(&flagServer, "server", envOr("CUSTIMPORT_SERVER", "http://localhost:8080"), "import server base URL")
	cmd.PersistentFlags().StringVar(&flagTenant, "tenant", os.Getenv("CUSTIMPORT_TENANT"), "tenant UUID")
	cmd.PersistentFlags().StringVar(&flagUser, "user", os.Getenv("CUSTIMPORT_USER"), "acting user UUID")

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSuggestCmd())
	cmd.AddCommand(newMapCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newCommitCmd())
	cmd.AddCommand(newRollbackCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newTemplatesCmd())
	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
