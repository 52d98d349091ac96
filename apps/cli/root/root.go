package root

import (
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/clienv"
)

// rootCmd is the base command for the records admin CLI. Subcommands (auth, bootstrap, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "palmyra-records",
	Short:         "Palmyra records admin CLI",
	Long:          "Administrative utilities for Palmyra records (schema bootstrap, tenant registry, dev tokens, index jobs).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var opts = clienv.Bind(rootCmd)

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
