// README: Dependency wiring shared by serve and invoke.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"tripflow/internal/config"
	"tripflow/internal/flow"
	"tripflow/internal/infra"
	"tripflow/internal/logging"
	"tripflow/internal/maps"
	"tripflow/internal/modules/aiusage"
	"tripflow/internal/service"
	"tripflow/internal/travel"
)

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *flow.Registry
	planner  *service.TripPlanner
	usage    *aiusage.Service
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	registry, err := travel.NewRegistry()
	if err != nil {
		return err
	}
	a.registry = registry

	var rdb redis.Cmdable
	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		rdb = client
	}

	gw, closeGateway, err := infra.NewGateway(ctx, cfg, rdb, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeGateway)

	invoker := flow.NewInvoker(registry, gw,
		flow.WithTimeout(cfg.Flow.Timeout),
		flow.WithLogger(a.logger),
	)

	opts := []service.Option{
		service.WithLogger(a.logger),
		service.WithRetries(cfg.Flow.Retries),
	}

	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.usage = aiusage.NewService(aiusage.NewStore(pool, cfg.Quota.Monthly))
		opts = append(opts, service.WithQuota(a.usage))
		a.logger.Info("quota enabled", "monthly", cfg.Quota.Monthly)
	}

	if cfg.Maps.APIKey != "" {
		mapOpts := maps.Options{Language: cfg.Maps.Language, Region: cfg.Maps.Region}
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, mapOpts)
		if err != nil {
			return err
		}
		places, err := maps.NewPlacesService(cfg.Maps.APIKey, mapOpts)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithRoutes(routes), service.WithPlaces(places))
		a.logger.Info("maps enrichment enabled")
	}

	a.planner = service.NewTripPlanner(invoker, opts...)
	return nil
}

// Close releases clients in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
