package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sphexbot/internal/config"
	"sphexbot/internal/core"
	"sphexbot/internal/httpclient"
	"sphexbot/internal/pipeline"
	"sphexbot/internal/processor"
	"sphexbot/internal/processors"
	"sphexbot/internal/router"
	"sphexbot/internal/store"
	"sphexbot/internal/store/redisstore"
	"sphexbot/internal/store/sqlitestore"
)

// app is the wired core: store, processors and router.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store.Store
	pipeline *pipeline.Pipeline
	router   *router.Router
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, emitter core.Emitter) (*app, error) {
	backend, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var scoped store.Store = backend
	if prefix := strings.TrimSpace(cfg.Store.Prefix); prefix != "" {
		scoped = store.WithPrefix(backend, prefix)
	}

	deps := processor.Deps{
		Logger: logger,
		Store:  scoped,
		HTTP: httpclient.New(httpclient.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		}, logger.With("component", "http")),
		BotName:           cfg.BotName,
		CommandPrefix:     cfg.CommandPrefix,
		SchedulerInterval: time.Duration(cfg.Scheduler.PollIntervalMS) * time.Millisecond,
	}

	p, err := pipeline.Build(processors.Registry(), cfg.Processors, deps)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	r := router.New(p, emitter, router.Options{
		BotName:         cfg.BotName,
		CommandPrefix:   cfg.CommandPrefix,
		ReplyWithSender: cfg.ReplyWithSender,
		Logger:          logger.With("component", "router"),
	})

	return &app{cfg: cfg, logger: logger, store: backend, pipeline: p, router: r}, nil
}

func (a *app) setup(ctx context.Context) error {
	return a.pipeline.Setup(ctx)
}

// close tears the processors down, then closes the store.
func (a *app) close(ctx context.Context) error {
	return errors.Join(a.pipeline.Teardown(ctx), a.store.Close())
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreDriverRedis:
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverSQLite:
		if dsn := strings.TrimSpace(cfg.DSN); dsn != "" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		s, err := sqlitestore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
