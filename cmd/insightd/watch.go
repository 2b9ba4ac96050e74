package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/intake"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the intake directory and process batch files as they arrive",
	Long: `Runs the engine as a long-lived process: batch files dropped into the
intake directory are ingested and recomputed automatically, and Prometheus
metrics are served if enabled. Stops cleanly on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "intake directory (overrides intake.dir)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	reg, cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer reg.Close()

	dir := cfg.Intake.Dir
	if watchDir != "" {
		dir = watchDir
	}
	if dir == "" {
		return fmt.Errorf("no intake directory configured (set intake.dir or pass --dir)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := intake.NewWatcher(dir, reg.Engine(), logger)
	if err != nil {
		return fmt.Errorf("creating intake watcher: %w", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting intake watcher: %w", err)
	}
	logger.Info("watching intake directory", zap.String("dir", dir))

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	return nil
}
