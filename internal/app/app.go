// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/api"
	"github.com/rovshanmuradov/yieldscope/internal/config"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/export"
	"github.com/rovshanmuradov/yieldscope/internal/gas"
	"github.com/rovshanmuradov/yieldscope/internal/metrics"
	"github.com/rovshanmuradov/yieldscope/internal/movecost"
	"github.com/rovshanmuradov/yieldscope/internal/normalize"
	"github.com/rovshanmuradov/yieldscope/internal/position"
	"github.com/rovshanmuradov/yieldscope/internal/pricing"
	"github.com/rovshanmuradov/yieldscope/internal/provider"
	"github.com/rovshanmuradov/yieldscope/internal/quote"
	"github.com/rovshanmuradov/yieldscope/internal/scheduler"
	"github.com/rovshanmuradov/yieldscope/internal/source"
)

// App holds every wired component. Build it with New and release it with Close.
type App struct {
	Config     *config.Config
	Metrics    *metrics.Collector
	Registry   *provider.Registry
	Aggregator *aggregator.Aggregator
	Gas        *gas.Service
	Estimator  *movecost.Estimator
	Scheduler  *scheduler.Scheduler
	API        *api.Server

	positions position.Store
	logger    *zap.Logger
	closers   []func()
}

// New wires the application from cfg. Redis and Postgres are optional.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger.Named("app")}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewCollector(reg)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.logger.Info("Redis cache enabled")
	}

	invalidators, err := a.buildProviders(logger)
	if err != nil {
		return nil, err
	}
	a.Aggregator = aggregator.New(a.Registry, a.Metrics, logger)

	if err := a.buildMoveCost(rdb, logger); err != nil {
		return nil, err
	}
	if err := a.buildPositions(ctx, rdb, logger); err != nil {
		return nil, err
	}

	formats := make([]export.ExportFormat, 0, len(cfg.Export.Formats))
	for _, f := range cfg.Export.Formats {
		format, err := export.ParseFormat(f)
		if err != nil {
			return nil, err
		}
		formats = append(formats, format)
	}
	a.Scheduler = scheduler.New(a.Aggregator, export.NewSnapshotExporter(logger), a.Metrics, scheduler.Options{
		Spec:         cfg.RefreshCron,
		ExportDir:    cfg.Export.Dir,
		Formats:      formats,
		Invalidators: invalidators,
	}, logger)

	a.API = api.NewServer(api.Deps{
		Yields:    a.Aggregator,
		Estimator: a.Estimator,
		Gas:       a.Gas,
		Positions: a.positions,
		Observer:  a.Metrics,
		Metrics:   a.Metrics.Handler(),
	}, logger)

	ok = true
	return a, nil
}

func (a *App) buildProviders(logger *zap.Logger) ([]scheduler.Invalidator, error) {
	cfg := a.Config
	a.Registry = provider.NewRegistry(logger)
	normalizer := normalize.NewNormalizer(logger, cfg.TVLMinRiskUSD)

	var invalidators []scheduler.Invalidator
	for _, spec := range []struct {
		mapping provider.Mapping
		pc      config.ProviderConfig
	}{
		{provider.AaveMapping(), cfg.Aave},
		{provider.CurveMapping(), cfg.Curve},
	} {
		if !spec.pc.Enabled {
			a.logger.Info("Provider disabled", zap.String("protocol", string(spec.mapping.Protocol)))
			continue
		}

		primary, err := a.buildSource(spec.mapping.Protocol, spec.pc, logger)
		if err != nil {
			return nil, err
		}
		memo, err := source.NewMemoSource(primary, spec.pc.MemoTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, memo.Close)
		invalidators = append(invalidators, memo)

		policy, err := provider.ParseExhaustionPolicy(spec.pc.Exhaustion)
		if err != nil {
			return nil, err
		}
		p := provider.New(spec.mapping, memo, source.FallbackSource(spec.mapping.Protocol), normalizer, provider.Options{
			MaxTries:        uint(spec.pc.Retries),
			InitialInterval: spec.pc.RetryInitial,
			MaxInterval:     spec.pc.RetryMax,
			Exhaustion:      policy,
			SnapshotTTL:     spec.pc.SnapshotTTL,
		}, logger)
		if err := a.Registry.Register(p); err != nil {
			return nil, err
		}
		a.logger.Info("Provider registered",
			zap.String("protocol", string(spec.mapping.Protocol)),
			zap.String("source", primary.Name()),
			zap.String("exhaustion", string(policy)))
	}
	return invalidators, nil
}

func (a *App) buildSource(protocol domain.Protocol, pc config.ProviderConfig, logger *zap.Logger) (source.Source, error) {
	switch pc.Source {
	case config.SourceFile:
		return source.NewFileSource(pc.DataFile, protocol, logger), nil
	case config.SourceStatic:
		return source.FallbackSource(protocol), nil
	}

	client := source.NewHTTPClient(pc.RequestTimeout)
	switch protocol {
	case domain.ProtocolAave:
		endpoints := make(map[domain.Chain]string, len(pc.Endpoints))
		for name, url := range pc.Endpoints {
			chain, err := domain.ParseChain(name)
			if err != nil {
				return nil, fmt.Errorf("aave endpoints: %w", err)
			}
			endpoints[chain] = url
		}
		if len(endpoints) == 0 {
			a.logger.Warn("No Aave subgraph endpoints configured, serving static data")
			return source.FallbackSource(protocol), nil
		}
		return source.NewAaveSubgraphSource(client, endpoints, logger), nil
	case domain.ProtocolCurve:
		return source.NewCurveAPISource(client, pc.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("no API source for %s", protocol)
	}
}

func (a *App) buildMoveCost(rdb *redis.Client, logger *zap.Logger) error {
	cfg := a.Config

	var fetcher gas.Fetcher
	if cfg.Gas.OracleURL != "" {
		fetcher = gas.NewHTTPOracle(source.NewHTTPClient(cfg.RequestTimeout), cfg.Gas.OracleURL, logger)
	}
	var cache gas.Cache
	if rdb != nil {
		cache = gas.NewRedisCache(rdb, "")
	} else {
		mem, err := gas.NewMemoryCache()
		if err != nil {
			return err
		}
		a.closers = append(a.closers, mem.Close)
		cache = mem
	}
	a.Gas = gas.NewService(fetcher, cache, cfg.Gas.CacheTTL, a.Metrics, logger)

	table, err := movecost.LoadGasTable(cfg.Gas.TableFile)
	if err != nil {
		return err
	}
	quotes := quote.NewClient(source.NewHTTPClient(cfg.RequestTimeout), cfg.Quote.BaseURL, cfg.Quote.APIKey, logger)
	a.Estimator = movecost.New(a.Gas, pricing.NewStaticTable(nil), quotes, table, a.Metrics, logger)
	return nil
}

func (a *App) buildPositions(ctx context.Context, rdb *redis.Client, logger *zap.Logger) error {
	if a.Config.PostgresURL == "" {
		a.positions = position.NewMemoryStore()
		a.logger.Warn("postgres_url not set, using in-memory position store")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := position.Connect(connectCtx, a.Config.PostgresURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)

	pg := position.NewPostgresStore(pool)
	if err := pg.Migrate(connectCtx); err != nil {
		return err
	}
	a.positions = pg
	if rdb != nil {
		a.positions = position.NewCachedStore(pg, rdb, position.DefaultCacheTTL, logger)
	}
	a.logger.Info("Connected to PostgreSQL position store")
	return nil
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.API.Router()
}

// PositionStore returns the store the API reads positions from.
func (a *App) PositionStore() position.Store {
	return a.positions
}

// Close releases pools, caches and clients in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
