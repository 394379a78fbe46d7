package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360studio/civicdraft/api"
	"github.com/c360studio/civicdraft/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the proposal API, progress WebSocket and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app := NewApp(cfg, logger)
			if err := app.Start(ctx, nil); err != nil {
				app.Shutdown()
				return err
			}
			defer app.Shutdown()

			opts := []api.Option{api.WithHub(app.hub), api.WithLogger(logger)}
			if app.store != nil {
				opts = append(opts, api.WithStore(app.store))
			}
			apiServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.NewServer(app.engine, opts...).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			var exporter *metrics.Exporter
			if cfg.Server.MetricsAddr != "" {
				exporter = metrics.NewExporter(cfg.Server.MetricsAddr, app.registry)
			}

			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				logger.Info("API listening", "addr", cfg.Server.Addr, "version", Version)
				if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			})
			if exporter != nil {
				grp.Go(func() error {
					logger.Info("Metrics listening", "addr", cfg.Server.MetricsAddr)
					if err := exporter.Start(); !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics exporter: %w", err)
					}
					return nil
				})
			}
			grp.Go(func() error {
				return app.WatchZoning(gctx)
			})
			grp.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()

				err := apiServer.Shutdown(shutdownCtx)
				if exporter != nil {
					err = errors.Join(err, exporter.Shutdown(shutdownCtx))
				}
				return err
			})

			return grp.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "API listen address (overrides server.addr)")
	return cmd
}
