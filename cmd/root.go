// Package cmd wires the scheduler's cobra CLI: a root command plus a
// "serve" subcommand that starts the full process (store, registry,
// scheduler, gateway, HTTP surface). No example repo in the retrieval
// pack used spf13/cobra; this package is authored directly from the
// library's documented root/subcommand idiom (DESIGN.md notes the
// exception).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "goclaw runs the outbound DM campaign scheduler",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; env vars always win)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the CLI; main.go's only job is to call this.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
