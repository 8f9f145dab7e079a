package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/splitpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("mirror",
	fx.Provide(NewSlot),
	fx.Provide(New),
)

// NewSlot opens the slot selected by MIRROR_BACKEND and closes it on stop.
func NewSlot(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Slot, error) {
	var (
		slot Slot
		err  error
	)
	switch cfg.MirrorBackend {
	case "badger", "":
		slot, err = OpenBadgerSlot(BadgerConfig{
			Path:       cfg.MirrorPath,
			SyncWrites: true,
			Key:        cfg.MirrorKey,
		}, log)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slot, err = NewRedisSlot(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.MirrorKey,
		})
	default:
		return nil, fmt.Errorf("unsupported mirror backend %q", cfg.MirrorBackend)
	}
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return slot.Close()
		},
	})
	log.Info("mirror slot opened", zap.String("backend", cfg.MirrorBackend))
	return slot, nil
}
