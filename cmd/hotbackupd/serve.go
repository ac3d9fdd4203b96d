package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/veymont/hotbackup/internal/api"
	"github.com/veymont/hotbackup/internal/checks"
	"github.com/veymont/hotbackup/internal/config"
	"github.com/veymont/hotbackup/internal/engine/sim"
	"github.com/veymont/hotbackup/internal/history"
	"github.com/veymont/hotbackup/internal/hotbackup"
	"github.com/veymont/hotbackup/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		pretty     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hot backup daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel, pretty)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/hotbackup/config.yml", "path to the config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "human-readable console logging")

	return cmd
}

func serve(cfg *config.Config, logger zerolog.Logger) error {
	dataDir, logDir, err := cfg.CanonicalDirs()
	if err != nil {
		return err
	}

	store, err := history.New(cfg.StateDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eng := sim.New(logger)
	if cfg.DefaultThrottleBps > 0 {
		eng.ThrottleBackup(cfg.DefaultThrottleBps)
	}

	registry := hotbackup.NewRegistry(logger)

	opts := hotbackup.ServiceOptions{Store: store}
	if cfg.MinFreeSpacePct > 0 {
		pct := cfg.MinFreeSpacePct
		opts.Preflight = func(destRoot string, sources []string) error {
			return checks.EnsureFreeSpace(destRoot, sources, pct)
		}
	}
	svc := hotbackup.NewService(eng, registry, dataDir, logDir, opts, logger)

	sched := scheduler.New(svc, logger)
	for _, s := range cfg.Schedules {
		if err := sched.Add(s); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(svc, registry, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("admin API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("admin API: %w", err)
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown admin API: %w", err)
	}
	return nil
}
