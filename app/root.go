// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "site-admin",
	Short: "site-admin is the backend for the personal-site admin console",
	Long: `site-admin serves the JSON API, WebSocket feed and static assets of the
personal-site admin console, including encrypted runtime configuration
management with change history and rollback.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
