// Package cli implements the pkgconnect command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the pkgconnect root command with every subcommand.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkgconnect",
		Short: "Client for the package connect server",
		Long: `pkgconnect talks to the package connect server:
- register this instance and renew the registration
- show the subscription status
- list and download packages into the local package store`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&ConfigPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().StringVar(&EnvFile, "env-file", "", "load environment switches from this file (default: ./.env when present)")
	cmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&OutputFormat, "output", "o", OutputTable, "output format (table, json)")

	cmd.AddCommand(
		NewStatusCmd(),
		NewDownloadsCmd(),
		NewFetchCmd(),
		NewRegisterCmd(),
		NewRenewCmd(),
		NewProjectsCmd(),
		NewTrialCmd(),
		NewIdentityCmd(),
		NewProxyCmd(),
		NewCacheCmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	)

	return cmd
}
