package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
)

// NewIdentityCmd creates the identity command with subcommands.
func NewIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the instance identity",
	}

	cmd.AddCommand(
		newIdentityShowCmd(),
		newIdentityResetCmd(),
	)

	return cmd
}

func newIdentityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the instance identity",
		Long:  "Show the registered client id and the technical fingerprint of this installation",
		Args:  cobra.NoArgs,
		RunE:  runIdentityShow,
	}
}

func newIdentityResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the instance identity",
		Long:  "Delete the stored identity. The instance must be registered again afterwards.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("%w: pass --yes to delete the identity", errutils.ErrValidation)
			}
			return runIdentityReset(cmd)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	return cmd
}

func runIdentityShow(cmd *cobra.Command, _ []string) error {
	c, err := newClient(commandContext(cmd))
	if err != nil {
		return err
	}
	defer c.Reset()

	store, err := c.Identity()
	if err != nil {
		return err
	}
	techID, err := c.TechnicalID()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	id, err := store.Load()
	if err != nil && !errors.Is(err, errutils.ErrNotRegistered) {
		return err
	}
	registered := err == nil

	if jsonOutput() {
		view := map[string]any{
			"registered":  registered,
			"technicalId": techID,
			"file":        store.Path(),
		}
		if registered {
			view["clientId"] = id.String()
			view["description"] = id.Description
			view["type"] = id.Type
		}
		return printJSON(out, view)
	}

	_, _ = fmt.Fprintf(out, "Identity file: %s\n", store.Path())
	if registered {
		_, _ = fmt.Fprintf(out, "Client id: %s\n", id.String())
		_, _ = fmt.Fprintf(out, "Type: %s\n", id.Type)
		if id.Description != "" {
			_, _ = fmt.Fprintf(out, "Description: %s\n", id.Description)
		}
	} else {
		_, _ = fmt.Fprintln(out, "Client id: not registered")
	}
	_, _ = fmt.Fprintf(out, "Technical id: %s\n", techID)
	return nil
}

func runIdentityReset(cmd *cobra.Command) error {
	c, err := newClient(commandContext(cmd))
	if err != nil {
		return err
	}
	defer c.Reset()

	store, err := c.Identity()
	if err != nil {
		return err
	}
	if err := store.Remove(); err != nil {
		return err
	}
	logger.Success("Instance identity deleted", logger.Fields{"path": store.Path()})
	return nil
}
