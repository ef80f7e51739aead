// Package cmd defines the CLI commands for the battlecrawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battlecrawler",
		Short: "Collects one-v-one battles from the top of the ladder.",
		Long: `battlecrawler walks player battlelogs outward from a set of seed
players, preferring opponents closest to the top of the ranked and trophy
ladders, and writes every distinct battle to a CSV file and any configured
stores.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().CountP("verbose", "v", "increase console log level (-v info, -vv debug)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
