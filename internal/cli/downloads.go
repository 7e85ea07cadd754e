package cli

import (
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/download"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/model"
	"github.com/glorpus-work/pkgconnect/pkg/platform"
	"github.com/glorpus-work/pkgconnect/pkg/version"
)

// progressInterval is how often fetch reports download progress.
const progressInterval = 500 * time.Millisecond

// NewDownloadsCmd creates the downloads command.
func NewDownloadsCmd() *cobra.Command {
	var (
		allPlatforms bool
		target       string
		constraint   string
	)

	cmd := &cobra.Command{
		Use:   "downloads TYPE",
		Short: "List available packages of a type",
		Long:  "List the packages of the given type the connect server offers this instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownloads(cmd, args[0], allPlatforms, target, constraint)
		},
	}

	cmd.Flags().BoolVar(&allPlatforms, "all-platforms", false, "Include packages built for other operating systems and architectures")
	cmd.Flags().StringVar(&target, "platform", "", "Only show packages supporting this platform version")
	cmd.Flags().StringVar(&constraint, "version", "", "Only show package versions matching this constraint, e.g. \">= 4.0\"")

	return cmd
}

func runDownloads(cmd *cobra.Command, packageType string, allPlatforms bool, target, constraint string) error {
	var platformVersion version.PlatformVersion
	if target != "" {
		v, err := version.Parse(target)
		if err != nil {
			return fmt.Errorf("%w: %w", errutils.ErrValidation, err)
		}
		platformVersion = v
	}

	ctx := commandContext(cmd)
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Reset()

	conn, err := c.Connector()
	if err != nil {
		return err
	}
	descriptors, err := conn.Downloads(ctx, packageType)
	if err != nil {
		return err
	}

	host := platform.Current()
	filtered := make([]model.PackageDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if !allPlatforms && !host.Matches(d.OS, d.Arch) {
			continue
		}
		if target != "" && !d.SupportsPlatform(platformVersion) {
			continue
		}
		if constraint != "" && !d.MatchVersion(constraint) {
			continue
		}
		filtered = append(filtered, d)
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, filtered)
	}
	if len(filtered) == 0 {
		_, _ = fmt.Fprintf(out, "No %s packages available.\n", packageType)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tVERSION\tSIZE\tDESCRIPTION")
	for _, d := range filtered {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Version, humanize.IBytes(uint64(max(d.Size, 0))), truncate(d.Description, MaxDescriptionLength))
	}
	return tw.Flush()
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch ID",
		Short: "Download a package",
		Long:  "Download a package bundle and hand it to the local package store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0])
		},
	}

	return cmd
}

func runFetch(cmd *cobra.Command, id string) error {
	ctx := commandContext(cmd)
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Reset()

	conn, err := c.Connector()
	if err != nil {
		return err
	}
	desc, err := conn.Download(ctx, id)
	if err != nil {
		return err
	}
	if desc == nil {
		return errutils.NewServerError(errutils.KindNotFound, http.StatusNotFound, fmt.Sprintf("package %s not found", id))
	}

	engine, err := c.Downloads()
	if err != nil {
		return err
	}
	dp, err := engine.StoreDownloadedBundle(ctx, *desc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case <-ctx.Done():
			engine.RemoveDownloadingPackage(dp.ID())
			return ctx.Err()
		case <-ticker.C:
			if p := dp.Progress(); p != last {
				last = p
				logger.Debug("Download progress", logger.Fields{"id": dp.ID(), "percent": p})
			}
		case <-dp.Done():
			if dp.State() != download.StateDownloaded {
				return fmt.Errorf("%w: %s: %s", errutils.ErrDownloadFailed, dp.ID(), dp.LastError())
			}
			size := dp.ExpectedSize()
			_, _ = fmt.Fprintf(out, "Downloaded %s %s (%s)\n", desc.ID, desc.Version, humanize.IBytes(uint64(max(size, 0))))
			return nil
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
