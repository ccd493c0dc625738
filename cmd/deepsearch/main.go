// Command deepsearch runs the deep research pipeline: a local server with
// HTTP and MCP surfaces, plus client commands for running queries, browsing
// history, and rendering reports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "deepsearch",
	Short:         "Deep web research with durable, renderable reports",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(keysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
