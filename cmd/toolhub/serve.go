package main

import (
	"context"

	"github.com/smallbiznis/toolhub/internal/auth"
	"github.com/smallbiznis/toolhub/internal/authorization"
	"github.com/smallbiznis/toolhub/internal/catalog"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/chat"
	"github.com/smallbiznis/toolhub/internal/contact"
	"github.com/smallbiznis/toolhub/internal/directorystats"
	"github.com/smallbiznis/toolhub/internal/functions"
	"github.com/smallbiznis/toolhub/internal/llm"
	"github.com/smallbiznis/toolhub/internal/migration"
	"github.com/smallbiznis/toolhub/internal/onboarding"
	"github.com/smallbiznis/toolhub/internal/profile"
	"github.com/smallbiznis/toolhub/internal/providers"
	"github.com/smallbiznis/toolhub/internal/ratelimit"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/internal/redisconn"
	"github.com/smallbiznis/toolhub/internal/scheduler"
	"github.com/smallbiznis/toolhub/internal/seed"
	"github.com/smallbiznis/toolhub/internal/server"
	"github.com/smallbiznis/toolhub/internal/sessionstore"
	"github.com/smallbiznis/toolhub/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var (
		seedOnStart bool
		seedFile    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, realtime feeds and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				core(),
				migration.Module,
				redisconn.Module,
				storage.Module,
				providers.Module,
				llm.Module,
				realtime.Module,
				auth.Module,
				authorization.Module,
				profile.Module,
				sessionstore.Module,
				onboarding.Module,
				catalog.Module,
				chat.Module,
				contact.Module,
				ratelimit.Module,
				functions.Module,
				scheduler.Module,
				directorystats.Module,
				server.Module,
			}
			if seedOnStart {
				opts = append(opts, fx.Invoke(func(svc catalogdomain.Service, log *zap.Logger) error {
					return seed.Run(context.Background(), svc, seedFile, log.Named("seed"))
				}))
			}
			fx.New(opts...).Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&seedOnStart, "seed", false, "load the starter catalog before serving")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "catalog YAML to load with --seed (default: built-in catalog)")
	return cmd
}
