package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/pkg/errutils"
)

// NewProxyCmd creates the proxy command with subcommands.
func NewProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Inspect proxy resolution",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve URL",
		Short: "Show how a request to URL is routed",
		Long:  "Apply the static proxy settings or the PAC script to URL and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxyResolve(cmd, args[0])
		},
	})

	return cmd
}

func runProxyResolve(cmd *cobra.Command, rawURL string) error {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", errutils.ErrValidation, rawURL)
	}

	ctx := commandContext(cmd)
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Reset()

	resolver, err := c.Resolver()
	if err != nil {
		return err
	}
	decision := resolver.Resolve(ctx, target)

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, map[string]any{
			"direct":      decision.IsDirect(),
			"proxy":       decision.Address(),
			"credentials": decision.Credentials.Kind,
		})
	}
	_, _ = fmt.Fprintln(out, decision.String())
	return nil
}
