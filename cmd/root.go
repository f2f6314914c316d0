// Package cmd implements the taarya command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taarya",
	Short: "TaarYa - agentic research assistant for astronomy",
	Long: `TaarYa answers natural-language astronomy questions by routing them
through an LLM planner to retrieval tools: semantic search over indexed
papers, cone search over a star catalog, knowledge-graph traversal, and
sandboxed code execution.

Run "taarya serve" to start the HTTP API, or "taarya ask" to query a
running server from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
