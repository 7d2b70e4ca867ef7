// Package cli wires configuration, storage, fetchers and publishers into the
// trendwatch commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo records build metadata reported by the version command.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

type rootFlags struct {
	config string
}

// NewRootCommand builds the trendwatch command tree.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "trendwatch",
		Short:         "Economy and geopolitics news alerts",
		Long:          "trendwatch scrapes news providers, scores stories by how many sources report them and alerts subscribers about the relevant ones.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "path to config file (default $XDG_CONFIG_HOME/trendwatch/config.yaml)")

	root.AddCommand(
		newServeCommand(flags),
		newRunCommand(flags),
		newClassifyCommand(flags),
		newProvidersCommand(flags),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trendwatch %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
