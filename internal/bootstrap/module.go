package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"xiaoer/internal/bootstrap/config"
	"xiaoer/internal/bootstrap/database"
	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
	cacheinfra "xiaoer/internal/infrastructure/cache"
	"xiaoer/internal/infrastructure/httpsource"
	plannerinfra "xiaoer/internal/infrastructure/planner"
	"xiaoer/internal/ports"
	"xiaoer/internal/transport/httpapi"
	"xiaoer/internal/usecase/agent"
	"xiaoer/internal/usecase/batch"
	"xiaoer/internal/usecase/fetchcache"
	"xiaoer/internal/usecase/tools"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideFetcher,
			fx.As(new(ports.RemoteSource)),
		),
	),
	fx.Provide(
		fx.Annotate(
			providePlanner,
			fx.As(new(ports.Planner)),
		),
	),
	fx.Provide(provideCatalog),
	fx.Provide(provideFetchService),
	fx.Provide(provideRegistry),
	fx.Provide(provideRunner),
	fx.Provide(agent.NewService),
	fx.Provide(provideHTTPServer),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideFetcher(cfg config.Config) *httpsource.Fetcher {
	return httpsource.NewFetcher(cfg.Source.BearerToken)
}

func providePlanner(cfg config.Config) *plannerinfra.OpenAIPlanner {
	return plannerinfra.NewOpenAIPlanner(cfg.Planner)
}

// provideCatalog degrades to an empty catalog when the endpoints file is
// missing or broken; only the endpoint routes depend on it.
func provideCatalog(ctx context.Context, cfg config.Config) *fetchcache.Catalog {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	catalog, err := fetchcache.LoadCatalog(cfg.Endpoints.File)
	if err != nil {
		logging.Warn(logCtx, "endpoint catalog unavailable",
			slog.String("file", cfg.Endpoints.File),
			slog.Any("err", errs.Loggable(err)),
		)
		return fetchcache.NewCatalog(nil)
	}

	logging.Info(logCtx, "endpoint catalog loaded",
		slog.String("file", cfg.Endpoints.File),
		slog.Int("endpoints", catalog.Len()),
	)
	return catalog
}

func provideFetchService(cache ports.Cache, source ports.RemoteSource, catalog *fetchcache.Catalog, cfg config.Config) *fetchcache.Service {
	return fetchcache.NewService(cache, source, catalog, fetchcache.Defaults{
		TTL:                 cfg.Cache.DefaultTTL(),
		Timeout:             cfg.Cache.FetchTimeout(),
		AllowStaleOnTimeout: cfg.Cache.AllowStaleOnTimeout,
		KeyPrefix:           cfg.Cache.KeyPrefix,
	})
}

func provideRegistry(fetchSvc *fetchcache.Service) *tools.Registry {
	registry := tools.NewRegistry()
	tools.RegisterLocalTools(registry)
	tools.RegisterCacheTools(registry, fetchSvc)
	return registry
}

func provideRunner(cfg config.Config) *batch.Runner {
	return batch.NewRunner(cfg.Batch.Width)
}

func provideHTTPServer(cfg config.Config, agentSvc *agent.Service, fetchSvc *fetchcache.Service, registry *tools.Registry, planner ports.Planner) *httpapi.Server {
	return httpapi.NewServer(cfg.Server, agentSvc, fetchSvc, registry, planner)
}
