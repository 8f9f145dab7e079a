package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// TransferOptions holds flags for the export and import commands.
type TransferOptions struct {
	*RootOptions
	Path string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every collection to a JSON snapshot",
		Long: `Write every collection to a JSON snapshot.

Example:
  splitpay export --out backup.json
  splitpay export > backup.json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "out", "o", "", "output file (default stdout)")

	return cmd
}

func runExport(ctx context.Context, opts *TransferOptions, stdout io.Writer) error {
	var engine *store.Engine
	return withApp(ctx, opts.RootOptions, func(ctx context.Context) error {
		snap, err := engine.Export(ctx)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		out := stdout
		if opts.Path != "" {
			f, err := os.Create(opts.Path)
			if err != nil {
				return fmt.Errorf("create %s: %w", opts.Path, err)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}, fx.Populate(&engine))
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace every collection with a JSON snapshot",
		Long: `Replace every collection with the contents of a JSON snapshot.

The snapshot is validated first. A rejected file leaves the store untouched.

Example:
  splitpay import --in backup.json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "in", "i", "", "snapshot file (required)")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func runImport(ctx context.Context, opts *TransferOptions, stdout io.Writer) error {
	raw, err := os.ReadFile(opts.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.Path, err)
	}

	var engine *store.Engine
	return withApp(ctx, opts.RootOptions, func(ctx context.Context) error {
		res, err := engine.Import(ctx, raw)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		_, err = fmt.Fprintf(stdout, "imported v%d snapshot %s: %d orders, %d payments, %d platforms, %d subscriptions, %d limit changes\n",
			res.Version, res.ID, res.Orders, res.Payments, res.Platforms, res.Subscriptions, res.LimitHistory)
		return err
	}, fx.Populate(&engine))
}
