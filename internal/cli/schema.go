package cli

import (
	"context"
	"fmt"

	"github.com/Combine-Capital/trail/pkg/bootstrap"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/sink/sqlsink"
	"github.com/spf13/cobra"
)

func newSchemaCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the trace table of the configured SQL sink",
	}

	var dialect string
	ddl := &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE TABLE statement without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			name := dialect
			if name == "" {
				name = cfg.Sink.Backend
			}
			d, err := sqlsink.LookupDialect(name)
			if err != nil {
				return err
			}
			m, err := bootstrap.MappingFromConfig(cfg.Sink)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sqlsink.NewSchema(nil, d, cfg.Sink.Table, m).DDL()+";")
			return err
		},
	}
	ddl.Flags().StringVar(&dialect, "dialect", "", "postgres, sqlite or sqlserver (default: the sink backend)")

	create := &cobra.Command{
		Use:   "create",
		Short: "Create the trace table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd.Context(), g, func(ctx context.Context, s *sqlsink.Schema) error {
				if err := s.Create(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "table ready")
				return nil
			})
		},
	}

	truncate := &cobra.Command{
		Use:   "truncate",
		Short: "Delete every row of the trace table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd.Context(), g, func(ctx context.Context, s *sqlsink.Schema) error {
				if err := s.Truncate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "table truncated")
				return nil
			})
		},
	}

	cmd.AddCommand(ddl, create, truncate)
	return cmd
}

// withSchema connects the configured backend and runs fn on its table.
func withSchema(ctx context.Context, g *globalFlags, fn func(context.Context, *sqlsink.Schema) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := g.load()
	if err != nil {
		return err
	}
	b, err := bootstrap.New(ctx, cfg, bootstrap.WithoutMetrics(), bootstrap.WithoutTracing(), bootstrap.WithoutLogger())
	if err != nil {
		return err
	}
	defer b.Cleanup(ctx)

	if b.Schema == nil {
		return errors.NewInvalidInput("sink.backend", cfg.Sink.Backend+" has no table")
	}
	return fn(ctx, b.Schema)
}
