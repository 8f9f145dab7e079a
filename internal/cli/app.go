package cli

import (
	"context"
	"fmt"

	"github.com/smallbiznis/splitpay/internal/clock"
	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/mirror"
	"github.com/smallbiznis/splitpay/internal/observability"
	"github.com/smallbiznis/splitpay/internal/seed"
	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/smallbiznis/splitpay/pkg/db"
	"go.uber.org/fx"
)

// coreModules wires everything the store engine needs.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		mirror.Module,
		seed.Module,
		store.Module,
	)
}

// withApp starts a short-lived app, hands control to fn and stops the app
// again. Starting the app initializes the store.
func withApp(ctx context.Context, opts *RootOptions, fn func(ctx context.Context) error, extra ...fx.Option) error {
	options := []fx.Option{coreModules()}
	options = append(options, extra...)
	if !opts.Verbose {
		options = append(options, fx.NopLogger)
	}

	app := fx.New(options...)
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(ctx)

	if err := app.Stop(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}
