package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"memoryd/internal/config"
	"memoryd/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory server",
	Long: `Starts the HTTP API immediately. The record store opens in the
background; until it is ready, store-backed routes answer 503.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	logging.Boot("memoryd %s starting: addr=%s data=%s provider=%s",
		version, cfg.Server.Addr, cfg.Data.Dir, cfg.Embedding.Provider)
	return a.run(ctx, configPath)
}

// run serves until ctx is cancelled. When watchPath exists, edits to it
// hot-reload the log level.
func (a *app) run(ctx context.Context, watchPath string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.srv.Run(gctx) })
	g.Go(func() error {
		a.publishStore(gctx)
		return nil
	})

	if watchPath != "" {
		if _, err := os.Stat(watchPath); err == nil {
			w, err := logging.NewConfigWatcher(watchPath, func() { reloadLogLevel(watchPath) })
			if err != nil {
				logging.Get(logging.CategoryConfig).Warn("config hot reload disabled: %v", err)
			} else {
				g.Go(func() error { return w.Run(gctx) })
			}
		}
	}

	err := g.Wait()
	logging.Boot("memoryd stopped")
	return err
}

func reloadLogLevel(path string) {
	next, err := config.Load(path)
	if err == nil {
		err = logging.SetLevel(next.Logging.Level)
	}
	if err != nil {
		logging.Get(logging.CategoryConfig).Warn("ignoring config change: %v", err)
	}
}
