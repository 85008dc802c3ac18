package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mppchs/internal/platform/config"
	"mppchs/internal/platform/httpserver"
	"mppchs/internal/platform/logger"
	"mppchs/internal/platform/postgres"
)

func newServeCmd() *cobra.Command {
	var (
		envFiles []string
		migrate  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", config.DefaultEnvFiles, "env files to load before reading the environment")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if migrate && cfg.Database.URL != "" {
		applied, err := postgres.Migrate(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "migrations applied", "count", len(applied))
	}

	a, err := buildApp(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server, a.router, log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "starting mppchs", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, run := range a.background {
		g.Go(func() error {
			if err := run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	a.close(closeCtx)
	return err
}
