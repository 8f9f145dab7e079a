package cli

import (
	"github.com/smallbiznis/splitpay/internal/server"
	"github.com/smallbiznis/splitpay/internal/sweeper"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overdue sweeper",
		Long: `Run the HTTP API together with the background overdue sweeper.

Configuration is read from the environment and an optional .env file.

Example:
  HTTP_ADDR=:9090 splitpay serve`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			options := []fx.Option{
				coreModules(),
				sweeper.Module,
				sweeper.Background,
				server.Module,
			}
			if !rootOpts.Verbose {
				options = append(options, fx.NopLogger)
			}
			fx.New(options...).Run()
			return nil
		},
	}
}
