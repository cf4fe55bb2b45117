package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thruflo/goalboard/internal/config"
	"github.com/thruflo/goalboard/internal/logging"
	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/store"
	"github.com/thruflo/goalboard/internal/stream"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "goalboard",
	Short: "Watch a goal-seeking agent plan and work toward a goal",
	Long: `goalboard runs a simulated planning agent against a goal and shows its
progress: tasks, assumptions, metrics and an activity feed.

Use "serve" for the web dashboard, "run" for a single run in the terminal
and "history" to look back at finished runs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("goalboard version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default .goalboard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// configFile returns the config file loadConfig reads.
func configFile() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return filepath.Join(cwd, config.DirName, "config.yaml"), nil
}

// loadConfig reads the config selected by --config, or the project config
// in the working directory, and applies its log level.
func loadConfig() (*config.Config, error) {
	path, err := configFile()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfigFile(path)
	if configPath == "" && errors.Is(err, os.ErrNotExist) {
		def := config.DefaultConfig()
		cfg, err = &def, nil
	}
	if err != nil {
		return nil, err
	}

	if err := applyLogLevel(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyLogLevel sets the global log level from cfg. --verbose wins.
func applyLogLevel(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = logging.LevelDebug
	}
	logging.SetLevel(level)
	return nil
}

// openHistory opens the run history, or returns nil when it is disabled.
func openHistory(cfg *config.Config) (*store.Store, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	s, err := store.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return s, nil
}

// newController builds a controller from cfg. history may be nil.
func newController(cfg *config.Config, hub *stream.Hub, history *store.Store, onSnapshot func(loop.Snapshot)) *loop.Controller {
	opts := loop.Options{
		MaxIterations: cfg.Agent.MaxIterations,
		SettleDelay:   cfg.Agent.SettleDelay,
		StepDelay:     cfg.Agent.StepDelay,
		Hub:           hub,
		OnSnapshot:    onSnapshot,
	}
	if history != nil {
		opts.Recorder = history
	}
	return loop.NewController(opts)
}

// commandContext returns the command's context, which is nil when a
// RunE function is called directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
