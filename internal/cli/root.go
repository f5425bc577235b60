// Package cli holds the query-gateway commands.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "query-gateway",
	Short: "OpenAI-compatible gateway for asynchronous query jobs",
	Long: `query-gateway accepts OpenAI chat completion requests, submits them as
query resources, and answers once the query finishes or relays its event
stream while it runs.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $XDG_CONFIG_HOME/query-gateway/config.yaml)")
	rootCmd.Flags().IntVarP(&servePort, "port", "p", 0, "server port (overrides config)")
}
