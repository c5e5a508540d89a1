package main

import (
	"github.com/spf13/cobra"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/entity"
	"github.com/o008/registry/coreengine/request"
)

// commands returns one subcommand per AppCommand.
func (c *cli) commands() []*cobra.Command {
	return []*cobra.Command{
		c.createTenant(),
		c.getTenant(),
		c.createBuilder(),
		c.getBuilder(),
		c.deleteBuilder(),
		c.createApplication(),
		c.getApplication(),
		c.createService(),
		c.getService(),
		c.getServiceVersions(),
		c.updateService(),
		c.persistService(),
		c.createServiceVersion(),
		c.persistServiceVersion(),
	}
}

// run builds the subcommand's AppCommand and dispatches it.
func (c *cli) run(build func(cmd *cobra.Command) (command.AppCommand, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appCmd, err := build(cmd)
		if err != nil {
			return err
		}
		return c.dispatch(cmd.Context(), appCmd)
	}
}

// =============================================================================
// TENANT & BUILDER
// =============================================================================

func (c *cli) createTenant() *cobra.Command {
	var name string
	var coexisting bool
	cmd := &cobra.Command{
		Use:     command.CreateTenant{}.Name(),
		Short:   "Create a tenant",
		GroupID: "tenant",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "tenant name")
	cmd.Flags().BoolVar(&coexisting, "coexisting", false, "tenant coexists with others")
	_ = cmd.MarkFlagRequired("name")

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return command.CreateTenant{Request: request.Tenant{
			Name:       request.String(name),
			Coexisting: request.Bool(coexisting),
		}}, nil
	})
	return cmd
}

func (c *cli) getTenant() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:     command.GetTenant{}.Name(),
		Short:   "Show a tenant",
		GroupID: "tenant",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "tenant name")
	_ = cmd.MarkFlagRequired("name")

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return command.GetTenant{Request: request.GetTenant(name)}, nil
	})
	return cmd
}

func (c *cli) createBuilder() *cobra.Command {
	var name, buildCommand string
	var active bool
	cmd := &cobra.Command{
		Use:     command.CreateBuilder{}.Name(),
		Short:   "Create a builder",
		GroupID: "tenant",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "builder name")
	cmd.Flags().BoolVarP(&active, "active", "a", false, "builder is active")
	cmd.Flags().StringVarP(&buildCommand, "cmd", "c", "", "build command")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("cmd")

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return command.CreateBuilder{Request: request.Builder{
			Name:         request.String(name),
			Active:       request.Bool(active),
			BuildCommand: request.String(buildCommand),
		}}, nil
	})
	return cmd
}

func (c *cli) getBuilder() *cobra.Command {
	return c.builderLookup(command.GetBuilder{}.Name(), "Show a builder", func(name string) command.AppCommand {
		return command.GetBuilder{Request: request.GetBuilder(name)}
	})
}

func (c *cli) deleteBuilder() *cobra.Command {
	return c.builderLookup(command.DeleteBuilder{}.Name(), "Delete an unreferenced builder", func(name string) command.AppCommand {
		return command.DeleteBuilder{Request: request.GetBuilder(name)}
	})
}

func (c *cli) builderLookup(use, short string, build func(name string) command.AppCommand) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		GroupID: "tenant",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "builder name")
	_ = cmd.MarkFlagRequired("name")

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return build(name), nil
	})
	return cmd
}

// =============================================================================
// APPLICATION
// =============================================================================

func (c *cli) createApplication() *cobra.Command {
	var name, tenant, classUnit, functionalGroup string
	cmd := &cobra.Command{
		Use:     command.CreateApplication{}.Name(),
		Short:   "Create an application under a tenant",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "application name")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "owning tenant")
	cmd.Flags().StringVarP(&classUnit, "class-unit", "c", "", "class unit")
	cmd.Flags().StringVarP(&functionalGroup, "functional-group", "f", "", "functional group")
	for _, f := range []string{"name", "tenant", "class-unit", "functional-group"} {
		_ = cmd.MarkFlagRequired(f)
	}

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		t := request.GetTenant(tenant)
		return command.CreateApplication{Request: request.Application{
			Name:            request.String(name),
			Tenant:          &t,
			ClassUnit:       request.String(classUnit),
			FunctionalGroup: request.String(functionalGroup),
		}}, nil
	})
	return cmd
}

func (c *cli) getApplication() *cobra.Command {
	var name, tenant string
	cmd := &cobra.Command{
		Use:     command.GetApplication{}.Name(),
		Short:   "Show an application",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "application name")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "owning tenant")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("tenant")

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return command.GetApplication{Request: request.GetApplication(name, tenant)}, nil
	})
	return cmd
}

// =============================================================================
// SERVICE
// =============================================================================

// serviceKey holds the flags identifying a service.
type serviceKey struct {
	name, app, tenant string
}

func (k *serviceKey) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&k.name, "name", "n", "", "service name")
	cmd.Flags().StringVarP(&k.app, "app", "a", "", "owning application")
	cmd.Flags().StringVarP(&k.tenant, "tenant", "t", "", "owning tenant")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("tenant")
}

func (k *serviceKey) request() request.Service {
	return request.GetService(k.name, k.app, k.tenant)
}

func (c *cli) createService() *cobra.Command {
	var key serviceKey
	var defaultRepo string
	cmd := &cobra.Command{
		Use:     command.CreateService{}.Name(),
		Short:   "Create a service under an application",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)
	cmd.Flags().StringVarP(&defaultRepo, "default-repo", "r", "", "default repository")
	_ = cmd.MarkFlagRequired("default-repo")

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		req := key.request()
		req.DefaultRepo = request.String(defaultRepo)
		return command.CreateService{Request: req}, nil
	})
	return cmd
}

func (c *cli) getService() *cobra.Command {
	var key serviceKey
	cmd := &cobra.Command{
		Use:     command.GetService{}.Name(),
		Short:   "Show a service",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return command.GetService{Request: key.request()}, nil
	})
	return cmd
}

func (c *cli) getServiceVersions() *cobra.Command {
	var key serviceKey
	cmd := &cobra.Command{
		Use:     command.GetServiceVersions{}.Name(),
		Short:   "Show a service with its versions",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)

	cmd.RunE = c.run(func(*cobra.Command) (command.AppCommand, error) {
		return command.GetServiceVersions{Request: key.request()}, nil
	})
	return cmd
}

func (c *cli) updateService() *cobra.Command {
	var key serviceKey
	cmd := &cobra.Command{
		Use:     command.UpdateService{}.Name(),
		Short:   "Update attributes of an existing service",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)
	cmd.Flags().String("rename", "", "new service name")
	cmd.Flags().String("move-app", "", "move to this application")
	cmd.Flags().String("move-tenant", "", "tenant of --move-app (defaults to --tenant)")
	cmd.Flags().StringP("default-repo", "r", "", "new default repository")

	cmd.RunE = c.run(func(cmd *cobra.Command) (command.AppCommand, error) {
		return command.UpdateService{Source: key.request(), Request: serviceChanges(cmd, key)}, nil
	})
	return cmd
}

func (c *cli) persistService() *cobra.Command {
	var key serviceKey
	cmd := &cobra.Command{
		Use:     command.PersistService{}.Name(),
		Short:   "Create a service or update it when it exists",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)
	cmd.Flags().StringP("default-repo", "r", "", "default repository")

	cmd.RunE = c.run(func(cmd *cobra.Command) (command.AppCommand, error) {
		return command.PersistService{Source: key.request(), Request: serviceChanges(cmd, key)}, nil
	})
	return cmd
}

// serviceChanges builds an update request from the flags that were set.
func serviceChanges(cmd *cobra.Command, key serviceKey) request.Service {
	var req request.Service
	req.Name = optString(cmd, "rename")
	req.DefaultRepo = optString(cmd, "default-repo")
	if app := optString(cmd, "move-app"); app != nil {
		tenant := key.tenant
		if t := optString(cmd, "move-tenant"); t != nil {
			tenant = *t
		}
		a := request.GetApplication(*app, tenant)
		req.Application = &a
	}
	return req
}

// =============================================================================
// SERVICE VERSION
// =============================================================================

func (c *cli) createServiceVersion() *cobra.Command {
	var key serviceKey
	var version string
	cmd := &cobra.Command{
		Use:     command.CreateServiceVersion{}.Name(),
		Short:   "Create a version of a service",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)
	cmd.Flags().StringVarP(&version, "version", "v", "", "version")
	bindVersionFlags(cmd)
	for _, f := range []string{"version", "repo", "kind", "reference", "builder"} {
		_ = cmd.MarkFlagRequired(f)
	}

	cmd.RunE = c.run(func(cmd *cobra.Command) (command.AppCommand, error) {
		req, err := versionChanges(cmd)
		if err != nil {
			return nil, err
		}
		svc := key.request()
		req.Version = request.String(version)
		req.Service = &svc
		return command.CreateServiceVersion{Request: req}, nil
	})
	return cmd
}

func (c *cli) persistServiceVersion() *cobra.Command {
	var key serviceKey
	var version string
	cmd := &cobra.Command{
		Use:     command.PersistServiceVersion{}.Name(),
		Short:   "Create a service version or update it when it exists",
		GroupID: "service",
		Args:    cobra.NoArgs,
	}
	key.bind(cmd)
	cmd.Flags().StringVarP(&version, "version", "v", "", "version")
	bindVersionFlags(cmd)
	_ = cmd.MarkFlagRequired("version")
	cmd.MarkFlagsRequiredTogether("repo", "kind", "reference")

	cmd.RunE = c.run(func(cmd *cobra.Command) (command.AppCommand, error) {
		req, err := versionChanges(cmd)
		if err != nil {
			return nil, err
		}
		source := request.GetServiceVersion(version, key.name, key.app, key.tenant)
		return command.PersistServiceVersion{Source: source, Request: req}, nil
	})
	return cmd
}

func bindVersionFlags(cmd *cobra.Command) {
	cmd.Flags().String("repo", "", "repository of the reference")
	cmd.Flags().StringP("kind", "k", "", "reference kind: Tag, Branch or Commit")
	cmd.Flags().String("reference", "", "tag, branch or commit")
	cmd.Flags().StringP("builder", "b", "", "builder name")
}

// versionChanges builds the repo reference and builder from the flags that
// were set.
func versionChanges(cmd *cobra.Command) (request.ServiceVersion, error) {
	var req request.ServiceVersion
	if kind := optString(cmd, "kind"); kind != nil {
		k, err := entity.ParseRepoReferenceKind(*kind)
		if err != nil {
			return req, err
		}
		rr := request.GetRepoReference(*optString(cmd, "repo"), k, *optString(cmd, "reference"))
		req.RepoRef = &rr
	}
	if builder := optString(cmd, "builder"); builder != nil {
		b := request.GetBuilder(*builder)
		req.Builder = &b
	}
	return req, nil
}

// optString returns the flag value when it was set on the command line.
func optString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil
	}
	return &v
}
