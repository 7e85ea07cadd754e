package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/internal/logger"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the subscription status",
		Long:  "Fetch the subscription status of this instance from the connect server",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
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
	status, err := conn.Status(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if status == nil {
		_, _ = fmt.Fprintln(out, "The server has no subscription data for this instance.")
		return nil
	}
	if jsonOutput() {
		return printJSON(out, status)
	}

	state := "inactive"
	if status.Active {
		state = "active"
	}
	if status.Expired(time.Now()) {
		state = "expired"
	}
	_, _ = fmt.Fprintf(out, "Subscription: %s\n", state)
	if status.Plan != "" {
		_, _ = fmt.Fprintf(out, "Plan: %s\n", status.Plan)
	}
	if status.Organization != "" {
		_, _ = fmt.Fprintf(out, "Organization: %s\n", status.Organization)
	}
	if status.InstanceType != "" {
		_, _ = fmt.Fprintf(out, "Instance type: %s\n", status.InstanceType)
	}
	if !status.ExpiresAt.IsZero() {
		_, _ = fmt.Fprintf(out, "Expires: %s (%s)\n", status.ExpiresAt.Format(time.DateOnly), humanize.Time(status.ExpiresAt))
	}
	if status.LatestClientVersion != "" {
		_, _ = fmt.Fprintf(out, "Latest client: %s\n", status.LatestClientVersion)
	}
	for _, msg := range status.Messages {
		_, _ = fmt.Fprintf(out, "  %s\n", strings.TrimSpace(msg))
	}

	if err := conn.CheckClientVersion(status); err != nil {
		logger.Warn("This client is too old for the server", logger.Fields{"error": err.Error()})
	}
	return nil
}
