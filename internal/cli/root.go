// Package cli provides the graphsync command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/config"
	"github.com/colinxr/notion-graph-view-sub001/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// runtime holds what every subcommand needs after the config was loaded.
type runtime struct {
	configPath string
	loader     *config.Loader
	cfg        *config.Config
	logger     *zap.Logger
	level      zap.AtomicLevel
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:   "graphsync",
		Short: "Serve page graphs built from synced databases",
		Long: `graphsync stores pages synced from a workspace, extracts the backlinks
between them and serves per-database graphs from a cache kept current by
domain events.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return rt.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rt.configPath, "config", "",
		"path to a YAML config file (defaults to $"+config.EnvConfigPath+")")

	root.AddCommand(newServeCommand(rt))
	root.AddCommand(newMigrateCommand(rt))
	root.AddCommand(newExtractCommand(rt))
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "graphsync: %v\n", err)
		return err
	}
	return nil
}

func (rt *runtime) load() error {
	rt.loader = config.NewLoader(rt.configPath)
	cfg, err := rt.loader.Load()
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.logger, rt.level = logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: cfg.Logging.Service,
	})
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphsync %s\n", Version)
		},
	}
}
