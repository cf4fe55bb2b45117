package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thruflo/goalboard/internal/config"
	"github.com/thruflo/goalboard/internal/logging"
	"github.com/thruflo/goalboard/internal/server"
	"github.com/thruflo/goalboard/internal/stream"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web dashboard",
	Long: `Serves the goalboard web dashboard. Runs started from the browser are
recorded in the history database unless history is disabled.

Set server.password_hash (see "goalboard hash-password") to require a
password. The server shuts down cleanly on SIGINT or SIGTERM; an active run
ends with reason "shutdown".`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
		if err := config.ValidateServerConfig(cfg.Server); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cmd, cfg)
}

// serve runs the dashboard until ctx is cancelled.
func serve(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	hub := stream.NewHub(0)
	defer hub.Close()

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	ctrl := newController(cfg, hub, history, nil)

	var hist server.History
	if history != nil {
		hist = history
	}
	srv, err := server.NewServerFromConfig(cfg.Server, ctrl, hub, hist)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Serving dashboard on http://localhost:%d\n", srv.Port())
	if !srv.AuthEnabled() {
		fmt.Fprintln(out, "Warning: no password set, the dashboard is open to anyone who can reach it")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})
	g.Go(func() error {
		return watchConfig(gctx)
	})
	err = g.Wait()

	// A run started over HTTP ends with the context; wait for it to be
	// recorded before the history closes.
	<-ctrl.Done()
	return err
}

// watchConfig applies log level changes from the config file while the
// server runs. Everything else takes effect on the next start. A file
// that does not exist yet is picked up once it is written, as long as its
// directory exists.
func watchConfig(ctx context.Context) error {
	path, err := configFile()
	if err != nil || !dirExists(filepath.Dir(path)) {
		return nil
	}

	log := logging.With("component", "config")
	started, err := config.LoadConfigFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		def := config.DefaultConfig()
		started = &def
	case err != nil:
		log.Warn("not watching config", "path", path, "error", err)
		return nil
	}
	err = config.Watch(ctx, path, 0,
		func(next *config.Config) {
			if err := applyLogLevel(next); err != nil {
				log.Warn("invalid log level", "path", path, "error", err)
				return
			}
			log.Info("config reloaded", "path", path, "level", next.Logging.Level)
			if restartNeeded(started, next) {
				log.Warn("config changed; restart to apply settings other than logging.level", "path", path)
			}
		},
		func(err error) {
			log.Warn("config reload failed", "path", path, "error", err)
		})
	if err != nil {
		log.Warn("not watching config", "path", path, "error", err)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// restartNeeded reports whether next differs from the config the server
// started with in anything other than logging.
func restartNeeded(started, next *config.Config) bool {
	a, b := *started, *next
	a.Logging, b.Logging = config.Logging{}, config.Logging{}
	return !cmp.Equal(a, b)
}
