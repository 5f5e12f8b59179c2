package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/observability"
	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var nodeID int64

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "toolhub",
		Short:         "AI tool directory backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Int64Var(&nodeID, "node-id", envNodeID(), "snowflake node id, unique per replica (env NODE_ID)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

// core is what every command needs: config, logging, ids, database and time.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(nodeID)
}

func envNodeID() int64 {
	var id int64 = 1
	if raw := os.Getenv("NODE_ID"); raw != "" {
		if _, err := fmt.Sscan(raw, &id); err != nil {
			return 1
		}
	}
	return id
}
