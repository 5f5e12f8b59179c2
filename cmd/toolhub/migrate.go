package main

import (
	"context"
	"time"

	"github.com/smallbiznis/toolhub/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const oneShotTimeout = 2 * time.Minute

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), core(), migration.Module)
		},
	}
}

// runOnce starts the app so its invokes run, then stops it.
func runOnce(parent context.Context, opts ...fx.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, oneShotTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(ctx)
}
