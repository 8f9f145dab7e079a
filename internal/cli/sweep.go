package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/smallbiznis/splitpay/internal/sweeper"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "sweep",
		Short:        "Mark past-due pending payments overdue once",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runSweep(ctx context.Context, opts *RootOptions, stdout io.Writer) error {
	var svc *sweeper.Service
	return withApp(ctx, opts, func(ctx context.Context) error {
		promoted, err := svc.RunOnce(ctx, sweeper.TriggerManual)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		_, err = fmt.Fprintf(stdout, "%d payments marked overdue\n", promoted)
		return err
	}, sweeper.Module, fx.Populate(&svc))
}
