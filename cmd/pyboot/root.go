package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/pyboot/internal/config"
	"github.com/BadgerOps/pyboot/internal/download"
	"github.com/BadgerOps/pyboot/internal/envs"
	"github.com/BadgerOps/pyboot/internal/metrics"
	"github.com/BadgerOps/pyboot/internal/mirror"
	"github.com/BadgerOps/pyboot/internal/runner"
	"github.com/BadgerOps/pyboot/internal/store"
)

const version = "0.1.0"

// historyDBName is the history database file under the install root.
const historyDBName = "pyboot.db"

var (
	// Global flags
	cfgPath         string
	projectDir      string
	logLevel        string
	logFormat       string
	quiet           bool
	metricsTextfile string
	logger          *slog.Logger

	// Global components
	globalCfg     *config.Store
	globalService *envs.PythonService
	globalStore   *store.Store
	globalMetrics *metrics.Metrics
)

// initializeComponents wires the runner, downloader, selector and observers
// into the provisioning service.
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	cfg := globalCfg.Get()
	layout := cfg.Layout()

	r := runner.NewExecRunner(logger)
	downloader := download.NewService(download.NewClient(logger), logger)

	selector := mirror.NewSelector(mirror.NewPingProber(r), logger)
	if cfg.Env.ProbeWorkers > 1 {
		selector.Workers = cfg.Env.ProbeWorkers
	}

	globalService = envs.NewPythonService(globalCfg, r, downloader, selector, logger)

	globalMetrics = metrics.New()
	globalService.AddObserver(globalMetrics)

	st, err := store.New(filepath.Join(layout.Root, historyDBName), logger)
	if err != nil {
		// History is informational; provisioning still works without it.
		logger.Warn("history disabled", "error", err)
	} else {
		globalStore = st
		globalService.AddObserver(st)
	}

	logger.Debug("components initialized", "root", layout.Root, "project", layout.ProjectDir)
	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmd *cobra.Command) bool {
	if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		return true
	}
	return cmd.Name() == "help"
}

// finish flushes metrics and closes the history store
func finish() {
	if logger == nil {
		return
	}
	if globalMetrics != nil && metricsTextfile != "" {
		if err := globalMetrics.WriteTextfile(metricsTextfile); err != nil {
			logger.Error("failed to write metrics", "path", metricsTextfile, "error", err)
		}
	}
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pyboot",
		Short: "Bootstrap a self-contained Python environment for a project",
		Long: `pyboot provisions a self-contained Python runtime for a project: it installs
the uv package manager, downloads a standalone CPython build, creates the
project virtual environment and installs the declared dependencies.

Package index and interpreter mirrors are chosen by measuring latency to each
candidate, so installs work well from regions where the default sources are
slow. A pre-bundled wheel archive next to the install root enables offline
installs.`,
		Example: `  pyboot install all
  pyboot source pip
  pyboot install sync
  pyboot check
  pyboot config set env.pip_source https://pypi.org/simple`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if cfgPath == "" {
				path, err := config.FindConfigFile()
				if err != nil {
					logger.Debug("no config file found, using defaults", "error", err)
					path = config.DefaultConfigFile
				}
				cfgPath = path
			}

			st, err := config.OpenStore(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			globalCfg = st

			// Override with command-line flags if provided
			if projectDir != "" {
				if err := globalCfg.Update(func(c *config.Config) { c.Project.Dir = projectDir }); err != nil {
					return fmt.Errorf("failed to set project dir: %w", err)
				}
			}

			logger.Debug("config loaded", "path", cfgPath)

			if !shouldSkipComponentInit(cmd) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&projectDir, "project", "", "project directory (saved to the config file)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress progress output")
	cmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(
		newInstallCmd(),
		newCheckCmd(),
		newVersionCmd(),
		newWhichUVCmd(),
		newSourceCmd(),
		newConfigCmd(),
		newHistoryCmd(),
		newStatusCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}
