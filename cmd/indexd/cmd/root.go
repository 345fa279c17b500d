// Package cmd provides the CLI commands for indexd.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/archivetools/indexd/internal/config"
	"github.com/archivetools/indexd/internal/logging"
	"github.com/archivetools/indexd/pkg/version"
)

var (
	configPath string
	debugMode  bool

	cfg            *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the indexd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexd",
		Short: "Metadata extraction pipeline for the software archive",
		Long: `indexd schedules and runs content indexers (mimetype, language,
ctags, license, metadata) over archived content, storing results keyed
by content fingerprint and producing tool identity.

Scheduling and execution are decoupled: 'indexd schedule' submits jobs
to the queue, 'indexd worker' consumes and runs them.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("indexd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to indexd.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRun = teardown

	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the configuration and installs the process logger.
func setup(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardown(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
