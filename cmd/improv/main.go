// Package main is the entry point for the improv server CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configFile string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "improv",
		Short: "A web server where every page is improvised by an AI",
		Long: `Improv answers every URL with a freshly generated page. Responses are
cached, remembered, and summarized so pages can reference each other;
nothing is ever "not found".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
