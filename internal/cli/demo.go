package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/Combine-Capital/trail/pkg/activity"
	"github.com/Combine-Capital/trail/pkg/bootstrap"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/sink"
	"github.com/Combine-Capital/trail/pkg/sink/logsink"
	"github.com/spf13/cobra"
)

func newDemoCmd(g *globalFlags) *cobra.Command {
	var (
		rows    int
		failRow int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Trace a small import against the configured sink",
		Long:  "Runs an Import activity with a nested Validate activity that checks --rows rows. --fail-row makes validation fail on that row so the error path is traced too.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			b, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return err
			}

			demoErr := runDemo(ctx, b.Tracer, rows, failRow)
			if err := b.Cleanup(ctx); err != nil {
				return err
			}

			if mem, ok := b.Sink.(*sink.Memory); ok {
				printRecords(cmd.OutOrStdout(), mem)
			}
			if demoErr != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "import failed: %v\n", demoErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 3, "rows to validate")
	cmd.Flags().IntVar(&failRow, "fail-row", -1, "row that fails validation, -1 for none")
	return cmd
}

// runDemo traces Import > Validate. Validation fails on failRow.
func runDemo(ctx context.Context, tracer *activity.Tracer, rows, failRow int) error {
	return tracer.Run(ctx, "Import", func(ctx context.Context, imp *activity.Activity) error {
		_ = imp.Info("Starting", activity.WithDetail("rows", rows))

		counter := activity.NewCounter("rows")
		err := tracer.Run(ctx, "Validate", func(ctx context.Context, v *activity.Activity) error {
			for i := 0; i < rows; i++ {
				stop := counter.Start()
				if i == failRow {
					stop()
					return errors.NewInvalidInput("row", fmt.Sprintf("row %d has a bad checksum", i))
				}
				_ = v.Item("Row valid", activity.WithDetail("row", i))
				stop()
			}
			return v.Metric(counter)
		})
		if err != nil {
			return err
		}
		return imp.Info("Done")
	})
}

func printRecords(w io.Writer, mem *sink.Memory) {
	for _, rec := range mem.Records() {
		fmt.Fprintln(w, logsink.Line(rec, logsink.DefaultIndent))
	}
}
