package sweeper

import (
	"context"

	"github.com/smallbiznis/splitpay/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module("sweeper",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLocker),
	fx.Provide(func(e *store.Engine) PaymentStore { return e.Payments }),
	fx.Provide(New),
)

// Background runs the sweeper loop for the lifetime of the app. Only
// long-running commands include it.
var Background = fx.Invoke(registerLoop)

func registerLoop(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go svc.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
