package main

import (
	"context"

	"github.com/smallbiznis/toolhub/internal/catalog"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/migration"
	"github.com/smallbiznis/toolhub/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the starter tool catalog, skipping slugs that exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(),
				core(),
				migration.Module,
				catalog.Module,
				fx.Invoke(func(svc catalogdomain.Service, log *zap.Logger) error {
					return seed.Run(context.Background(), svc, file, log.Named("seed"))
				}),
			)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML (default: built-in catalog)")
	return cmd
}
