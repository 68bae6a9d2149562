package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/httpd"
	"github.com/nissy-dev/tunstack/internal/log"
	"github.com/nissy-dev/tunstack/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the full stack with the HTTP server on top",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		logger := log.GetLogger()

		var ms *metrics.Server
		if cfg.Metrics.Enabled {
			ms = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
			ms.Start()
		}

		server, err := httpd.NewServer(cfg)
		if err != nil {
			exitWithError("failed to start server", err)
		}
		server.Listen()

		// Stopping the stack unblocks Serve with ErrStackStopped.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			logger.WithField("signal", sig.String()).Info("shutting down")
			server.Stop()
		}()

		err = server.Serve()

		if ms != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := ms.Stop(ctx); serr != nil {
				logger.WithError(serr).Warn("metrics server shutdown failed")
			}
		}
		if err != nil && !errors.Is(err, core.ErrStackStopped) {
			exitWithError("server stopped", err)
		}
	},
}
