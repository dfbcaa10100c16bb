// Package handlers wires the repub CLI commands.
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "repub",
		Short: "repub serves an article API and republishes enhanced articles",
		Long: `repub manages a small article catalog and an enhancement pipeline.

The 'serve' command exposes the article CRUD API. The 'enhance' command takes
the latest original article, scrapes reference pages from the configured
source site, rewrites the article through a text-generation backend and
publishes the result as a linked derivative. The 'import' command seeds the
catalog by scraping the source site directly.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .repub.yaml in the current or home directory)")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewEnhanceCmd())
	rootCmd.AddCommand(NewImportCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
