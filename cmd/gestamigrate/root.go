package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gestasaas/gestamigrate/application"
	"github.com/gestasaas/gestamigrate/config"
	"github.com/gestasaas/gestamigrate/log"
	"github.com/gestasaas/gestamigrate/report"
)

// cli holds what every subcommand needs once flags and environment are read.
type cli struct {
	out io.Writer

	envFile   string
	logLevel  string
	logFormat string
	noColor   bool

	cfg     config.Config
	console *report.Console
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "gestamigrate",
		Short:         "Idempotent schema changes for the GestaSaaS database",
		Long:          "gestamigrate applies built-in or file based schema changes to PostgreSQL statement by statement, treats already applied changes as skips and verifies the result against the catalogs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error (default from LOG_LEVEL)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: text or json (default from LOG_FORMAT)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.listCmd(),
		c.applyCmd(),
		c.runCmd(),
		c.verifyCmd(),
		c.adminsCmd(),
	)

	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err //nolint:wrapcheck
	}

	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}

	c.cfg = cfg
	c.console = report.NewConsole(c.out, c.noColor)

	log.SetDefault(log.New(os.Stderr, cfg.LogFormat, log.ParseLevel(cfg.LogLevel), nil))

	return nil
}

func (c *cli) application() *application.Application {
	events := log.NewWideEventLogger(os.Stderr, slog.LevelInfo, c.cfg.LogFormat, nil)

	return application.New(
		application.DatabaseOpener(c.cfg.DB),
		application.WithReporter(c.console),
		application.WithEventLogger(events),
	)
}
