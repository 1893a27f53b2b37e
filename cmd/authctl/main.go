// Command authctl is the operator tool for the auth subsystem: it hashes
// passwords for seeding accounts, inspects tokens and revokes sessions.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "authctl",
	Short:         "Operator tool for club-manager authentication",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
