package cli

import (
	"context"

	"github.com/Combine-Capital/trail/pkg/bootstrap"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/health"
	"github.com/spf13/cobra"
)

func newHealthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured sink and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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

			result := b.Health.Check(ctx)
			if err := result.WriteJSON(cmd.OutOrStdout()); err != nil {
				return err
			}
			if result.Status != health.StatusHealthy {
				return errors.NewTemporary("sink is unhealthy", nil)
			}
			return nil
		},
	}
}
