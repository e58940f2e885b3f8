package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teachhub/telemetry/internal/config"
	"github.com/teachhub/telemetry/internal/pkg/logger"
)

const (
	CmdServe    = "serve"
	CmdCleanup  = "cleanup"
	FlagConfig  = "config"
	FlagLogLvl  = "log-level"
	shutdownTTL = 10 * time.Second
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "telemetryd",
	Short: "Telemetry engine: error tracking, performance monitoring and user analytics",
	Long: `telemetryd ingests errors, performance metrics and user behavior events,
keeps them in Redis with an in-process fallback buffer, and serves
aggregated statistics to the admin dashboard.

  telemetryd serve      # start the HTTP server and background jobs (default)
  telemetryd cleanup    # run one retention pass and exit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   CmdServe,
	Short: "Start the HTTP server, retention scheduler and health sampler",
	RunE:  runServe,
}

var cleanupCmd = &cobra.Command{
	Use:   CmdCleanup,
	Short: "Prune records past their retention horizon and exit",
	RunE:  runCleanup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, FlagConfig, "", "path to config file (default ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, FlagLogLvl, "", "override log.level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, cleanupCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	a.scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("telemetry server started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("server listen failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTTL)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	a.Close(ctx)
	logger.Info("server exiting")
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	ran := a.scheduler.RunAll(ctx, "cleanup:")
	logger.Info("retention pass finished", "jobs", ran)
	a.Close(ctx)
	return nil
}
