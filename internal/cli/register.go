package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
	"github.com/glorpus-work/pkgconnect/pkg/model"
)

// NewRegisterCmd creates the register command.
func NewRegisterCmd() *cobra.Command {
	var (
		projectID    string
		description  string
		instanceType string
		local        bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this instance",
		Long: `Register this instance with the connect server and store the issued identity.
With --local a dev identity is generated without contacting the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegister(cmd, projectID, description, instanceType, local)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project to register the instance to")
	cmd.Flags().StringVar(&description, "description", "", "Human readable description of the instance")
	cmd.Flags().StringVar(&instanceType, "type", string(identity.TypeProd), "Instance type (prod, preprod, dev)")
	cmd.Flags().BoolVar(&local, "local", false, "Generate a local dev identity")

	return cmd
}

func runRegister(cmd *cobra.Command, projectID, description, instanceType string, local bool) error {
	t, err := identity.ParseInstanceType(instanceType)
	if err != nil {
		return err
	}
	if local && instanceType == string(identity.TypeProd) && !cmd.Flags().Changed("type") {
		t = identity.TypeDev
	}

	ctx := commandContext(cmd)
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Reset()

	var id identity.LogicalID
	if local {
		store, err := c.Identity()
		if err != nil {
			return err
		}
		if id, err = store.RegisterLocal(description, t); err != nil {
			return err
		}
	} else {
		if projectID == "" {
			return fmt.Errorf("%w: --project is required, see 'pkgconnect projects'", errutils.ErrValidation)
		}
		conn, err := c.Connector()
		if err != nil {
			return err
		}
		if id, err = conn.RegisterInstance(ctx, projectID, description, t); err != nil {
			return err
		}
	}

	logger.Success("Instance registered", logger.Fields{"client_id": id.String(), "type": id.Type})
	return nil
}

// NewRenewCmd creates the renew command.
func NewRenewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Renew the registration",
		Long:  "Ask the connect server to renew the registration of this instance",
		Args:  cobra.NoArgs,
		RunE:  runRenew,
	}

	return cmd
}

func runRenew(cmd *cobra.Command, _ []string) error {
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
	resp, err := conn.RenewRegistration(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, resp)
	}
	if !resp.Renewed {
		_, _ = fmt.Fprintf(out, "Registration was not renewed. %s\n", resp.Message)
		return nil
	}
	_, _ = fmt.Fprint(out, "Registration renewed.")
	if resp.ExpiresAt != "" {
		_, _ = fmt.Fprintf(out, " Valid until %s.", resp.ExpiresAt)
	}
	_, _ = fmt.Fprintln(out)
	return nil
}

// NewProjectsCmd creates the projects command.
func NewProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects available for registration",
		Args:  cobra.NoArgs,
		RunE:  runProjects,
	}

	return cmd
}

func runProjects(cmd *cobra.Command, _ []string) error {
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
	projects, err := conn.AvailableProjects(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, projects)
	}
	if len(projects) == 0 {
		_, _ = fmt.Fprintln(out, "No projects available.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, p := range projects {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, truncate(p.Description, MaxDescriptionLength))
	}
	return tw.Flush()
}

// NewTrialCmd creates the trial command.
func NewTrialCmd() *cobra.Command {
	var trial model.TrialRegistration

	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Request a trial subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			if err := conn.SubmitTrialRegistration(ctx, trial); err != nil {
				return err
			}
			logger.Success("Trial requested", logger.Fields{"email": trial.Email})
			return nil
		},
	}

	cmd.Flags().StringVar(&trial.Email, "email", "", "Contact email address (required)")
	cmd.Flags().StringVar(&trial.Name, "name", "", "Contact name")
	cmd.Flags().StringVar(&trial.Company, "company", "", "Company name")
	cmd.Flags().StringVar(&trial.ProjectID, "project", "", "Project the trial is for")

	return cmd
}
