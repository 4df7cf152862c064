package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "concernd",
		Short: "Concern escalation and notification pipeline",
		Long: `concernd runs the processes of the concern pipeline:

  api           accepts concern submissions and account notifications over HTTP
  assigner      assigns queued concerns to operators and persists them
  mailer        delivers notifications from the topic by email`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(apiCmd())
	rootCmd.AddCommand(assignerCmd())
	rootCmd.AddCommand(mailerCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(deadLettersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
