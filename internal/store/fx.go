package store

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/schedule"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("store",
	fx.Provide(NewNode),
	fx.Provide(func() *schedule.Calculator { return schedule.New(nil) }),
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

// NewNode returns the snowflake node that mints order and payment ids.
func NewNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}

func registerLifecycle(lc fx.Lifecycle, e *Engine, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return e.Initialize(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := e.Flush(ctx); err != nil {
				log.Warn("backup mirror refresh still running at shutdown", zap.Error(err))
			}
			return nil
		},
	})
}
