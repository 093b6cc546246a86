// Package commands implements the fdbridged command tree.
package commands

import (
	"github.com/spf13/cobra"
)

// configFile is the --config flag, shared by all subcommands.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "fdbridged",
	Short: "File-descriptor bridge server",
	Long: `fdbridged executes file-I/O operations on behalf of instrumented
client processes. Clients reach it over a unix socket (default) or TCP,
selected by RPC_TRANSPORT; each connection gets its own descriptor
translation table and is served strictly in request order.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to config file (optional; defaults and environment apply without one)")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}
