package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/pkg/cache"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
		Long:  "Clean, show information about, and locate the cache of server responses",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the response cache",
		Long:  "Remove cached responses. Without --older-than every entry is removed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheOperation(cmd, func(op *cache.Operation) (string, error) {
				return op.Clean(olderThan)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove entries older than this, e.g. 24h")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the size and age of the response cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheOperation(cmd, (*cache.Operation).GetInfo)
		},
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheOperation(cmd, func(op *cache.Operation) (string, error) {
				return op.GetDirectory(), nil
			})
		},
	}
}

func runCacheOperation(cmd *cobra.Command, run func(op *cache.Operation) (string, error)) error {
	c, err := newClient(commandContext(cmd))
	if err != nil {
		return err
	}
	defer c.Reset()

	manager, err := c.Cache()
	if err != nil {
		return err
	}
	result, err := run(cache.NewOperation(manager))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
