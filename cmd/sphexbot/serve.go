package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sphexbot/internal/config"
	"sphexbot/internal/core"
	"sphexbot/internal/gateway"
	"sphexbot/internal/gateway/console"
	"sphexbot/internal/gateway/telegram"
	"sphexbot/internal/gateway/whatsapp"
	"sphexbot/internal/health"
	"sphexbot/internal/schedule"
	"sphexbot/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the enabled gateways, processors, schedulers and health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.load(os.Stdout)
	if err != nil {
		slog.Error("failed to load config", "path", opts.configPath, "error", err)
		return err
	}
	logger.Info("starting service", "app", version.AppName, "version", version.Version)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := gateway.NewMux()
	a, err := newApp(ctx, cfg, logger, mux)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := a.close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	gateways, err := buildGateways(cfg, a.router, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	for _, gw := range gateways {
		if err := mux.Register(gw.Channel(), gw); err != nil {
			return err
		}
	}
	if len(gateways) == 0 {
		logger.Warn("no gateway enabled; set whatsapp.enabled, telegram.enabled or console.enabled in the config")
	}

	if err := a.setup(ctx); err != nil {
		logger.Error("processor setup failed", "error", err)
		return err
	}
	logger.Info("processors ready", "processors", a.pipeline.IDs())

	tracker := newTracker(a, mux.Channels())

	var wg sync.WaitGroup

	if cfg.Health.Enabled {
		healthServer := health.NewServer(cfg.Health, tracker, logger.With("component", "health"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Start(ctx); err != nil {
				logger.Error("health server stopped with error", "error", err)
			}
		}()
	}

	for _, gw := range gateways {
		gw := gw
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := gw.Channel()
			tracker.SetRunning(name, true)

			if err := gw.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				tracker.SetRunning(name, false)
				tracker.SetError(name, err)
				logger.Error("gateway stopped with error", "gateway", name, "error", err)
				return
			}

			tracker.SetRunning(name, false)
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received", "app", version.AppName)
	wg.Wait()
	logger.Info("service stopped", "app", version.AppName)
	return nil
}

func buildGateways(cfg config.Config, dispatcher core.Dispatcher, logger *slog.Logger) ([]gateway.Gateway, error) {
	gateways := make([]gateway.Gateway, 0, 3)

	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram, dispatcher, logger.With("gateway", telegram.Channel))
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, tg)
	}

	if cfg.WhatsApp.Enabled {
		wa, err := whatsapp.New(cfg.WhatsApp, dispatcher, logger.With("gateway", whatsapp.Channel))
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, wa)
	}

	if cfg.Console.Enabled {
		gateways = append(gateways, console.New(cfg.Console, dispatcher, os.Stdin, os.Stdout, logger.With("gateway", console.Channel)))
	}

	return gateways, nil
}

func newTracker(a *app, channels []string) *health.Tracker {
	return health.NewTracker(version.AppName, version.Version, health.Components{
		Router:     a.router.Stats,
		Processors: a.pipeline.States,
		Schedulers: func() map[string]schedule.Stats {
			stats := make(map[string]schedule.Stats)
			for id, scheduler := range a.pipeline.Schedulers() {
				stats[id] = scheduler.Stats()
			}
			return stats
		},
	}, channels...)
}
