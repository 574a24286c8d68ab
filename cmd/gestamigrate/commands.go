package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gestasaas/gestamigrate/accounts"
	"github.com/gestasaas/gestamigrate/application"
	"github.com/gestasaas/gestamigrate/config"
	"github.com/gestasaas/gestamigrate/database"
	"github.com/gestasaas/gestamigrate/migrations"
	"github.com/gestasaas/gestamigrate/scheduler"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := migrations.Catalog(c.cfg)
			if err != nil {
				return err //nolint:wrapcheck
			}

			for _, e := range entries {
				_, _ = fmt.Fprintf(c.out, "%-14s %2d statements  %s\n", e.Name, e.Statements, e.Description)
			}
			return nil
		},
	}
}

func (c *cli) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <" + strings.Join(migrations.Names(), "|") + ">",
		Short: "Apply a built-in migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := migrations.Lookup(args[0], c.cfg)
			if errors.Is(err, migrations.ErrUnknownMigration) {
				return usageError("%s is not a built-in migration, expected one of %s",
					args[0], strings.Join(migrations.Names(), ", "))
			}
			if err != nil {
				return err //nolint:wrapcheck
			}

			return c.migrate(cmd.Context(), d)
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file.sql|descriptor.yaml>",
		Short: "Apply a migration read from a SQL script or a YAML descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := migrations.FromFile(args[0])
			if err != nil {
				return err //nolint:wrapcheck
			}

			return c.migrate(cmd.Context(), d)
		},
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "verify <migration|descriptor.yaml>",
		Short: "Check the catalogs for the objects a migration creates",
		Long:  "verify only reads the catalogs. With --schedule it keeps re-checking on a cron schedule until interrupted, opening a fresh connection for every pass.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.descriptor(args[0])
			if err != nil {
				return err
			}
			if d.Verify.IsEmpty() {
				return usageError("%s has no verification checks", d.Name)
			}

			app := c.application()

			if schedule == "" {
				return c.verify(cmd.Context(), app, d)
			}

			return c.watch(cmd.Context(), app, d, schedule)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", `cron expression to re-run verification, e.g. "@every 10m" or "0 * * * *"`)

	return cmd
}

func (c *cli) adminsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admins",
		Short: "List super admin accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(cmd.Context(), c.cfg.DB)
			if err != nil {
				return err //nolint:wrapcheck
			}
			defer func() { _ = db.Close() }()

			admins, err := accounts.NewRepository(db).ListSuperAdmins(cmd.Context())
			if err != nil {
				return err //nolint:wrapcheck
			}

			if len(admins) == 0 {
				_, _ = fmt.Fprintln(c.out, "no super admins")
				return nil
			}

			for _, admin := range admins {
				status := "active"
				if !admin.Ativo {
					status = "inactive"
				}
				_, _ = fmt.Fprintf(c.out, "%-32s %-24s %-8s %s\n",
					admin.Email, admin.Nome, status, admin.CriadoEm.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

// descriptor resolves a built-in name first and falls back to a file path.
// Built-in checks do not depend on the configured admins, so none are hashed.
func (c *cli) descriptor(arg string) (database.Descriptor, error) {
	d, err := migrations.Lookup(arg, config.Config{})
	if err == nil || !errors.Is(err, migrations.ErrUnknownMigration) {
		return d, err //nolint:wrapcheck
	}

	if _, statErr := os.Stat(arg); statErr != nil {
		return database.Descriptor{}, usageError("%s is neither a built-in migration (%s) nor a readable file",
			arg, strings.Join(migrations.Names(), ", "))
	}

	return migrations.FromFile(arg) //nolint:wrapcheck
}

func (c *cli) migrate(ctx context.Context, d database.Descriptor) error {
	c.console.Start(d)

	summary, err := c.application().Migrate(ctx, d)
	c.console.Summary(summary, err)

	return err //nolint:wrapcheck
}

func (c *cli) verify(ctx context.Context, app *application.Application, d database.Descriptor) error {
	c.console.Start(d)

	summary, err := app.Verify(ctx, d.Name, d.Verify)
	c.console.Summary(summary, err)

	return err //nolint:wrapcheck
}

// watch verifies once right away and then on every tick of schedule until ctx is done.
func (c *cli) watch(ctx context.Context, app *application.Application, d database.Descriptor, schedule string) error {
	s, err := scheduler.New(schedule, application.RunnerFunc(func(ctx context.Context) error {
		return c.verify(ctx, app, d)
	}))
	if err != nil {
		return usageError("%v", err)
	}

	// a failed first pass is reported like any later one
	_ = c.verify(ctx, app, d)

	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err //nolint:wrapcheck
}
