// Command gestamigrate applies idempotent schema changes to the GestaSaaS
// PostgreSQL database and verifies the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gestasaas/gestamigrate/application"
	"github.com/gestasaas/gestamigrate/report"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		// migration failures were already printed with the run summary
		var migrationErr *application.ErrMigrationFailed
		if !errors.As(err, &migrationErr) {
			report.NewConsole(os.Stderr, false).Failure(err)
		}

		cancel()
		os.Exit(1)
	}
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("invalid invocation: "+format, args...)
}
