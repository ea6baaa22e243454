// Package cli implements the trail command line.
package cli

import (
	"fmt"
	"os"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/spf13/cobra"
)

// DefaultEnvPrefix prefixes environment overrides, as in TRAIL_SINK_BACKEND.
const DefaultEnvPrefix = "TRAIL"

type globalFlags struct {
	configPath string
	envPrefix  string
}

func (g *globalFlags) load() (*config.Config, error) {
	return config.Load(g.configPath, g.envPrefix)
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "trail",
		Short:         "Hierarchical activity tracing to SQL tables and streams",
		Long:          "Creates and truncates trace tables, renders their DDL, checks sink health and runs a demo import against the configured sink.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&g.envPrefix, "env-prefix", DefaultEnvPrefix, "prefix of environment overrides")

	root.AddCommand(
		newSchemaCmd(g),
		newDemoCmd(g),
		newHealthCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
