// Package cmd contains the repwise CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repwise",
	Short: "Repwise - AI fitness coach backend",
	Long: `Repwise serves the AI fitness coach: a websocket conversation API
backed by workout analysis bundles and LLM-extracted memory.

Run "repwise serve" to start the HTTP server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
