package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/flowbridge/internal/config"
	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/hooks"
	"github.com/specialistvlad/flowbridge/internal/mapping"
	"github.com/specialistvlad/flowbridge/internal/metrics"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/resultstore"
	"github.com/specialistvlad/flowbridge/internal/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	ctx      context.Context
	logger   *slog.Logger
	settings *config.Settings

	registry   *registry.Registry
	modules    []registry.Module
	executor   *executor.Executor
	store      resultstore.Store
	catalog    *mapping.Catalog
	collectors *metrics.Collectors
	tracer     *sdktrace.TracerProvider
	dashboard  *hooks.SocketIOEmitter

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and
// registry. Passing modules replaces the core module set, which tests use
// to register stub node types. On error every resource opened so far is
// released.
func NewApp(outW io.Writer, settings *config.Settings, modules ...registry.Module) (app *App, err error) {
	logger := newLogger(settings.Log, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:     outW,
		ctx:      ctx,
		logger:   logger,
		settings: settings,
		catalog:  mapping.NewCatalog(settings.Mapping.Dir),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	for _, name := range settings.Mapping.Preload {
		if _, err := a.catalog.Get(name); err != nil {
			return nil, fmt.Errorf("preloading value map %q: %w", name, err)
		}
	}
	logger.Debug("Value maps preloaded.", "count", len(settings.Mapping.Preload), "dir", settings.Mapping.Dir)

	if len(modules) == 0 {
		modules = coreModules(a.catalog)
	}
	a.modules = modules
	a.registry = registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "types", a.registry.Types())

	if a.store, err = openStore(ctx, settings.Store); err != nil {
		return nil, err
	}

	execHooks := []executor.Hook{hooks.Log{}}
	if settings.Metrics.Enabled {
		a.collectors = metrics.NewCollectors(nil)
		execHooks = append(execHooks, hooks.NewMetrics(a.collectors))
	}
	if settings.Tracing.Enabled {
		a.tracer, err = tracing.InitTracer(ctx, tracing.Config{
			ServiceName: settings.Tracing.ServiceName,
			Endpoint:    settings.Tracing.Endpoint,
			Insecure:    settings.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		execHooks = append(execHooks, hooks.NewTrace(a.tracer))
		logger.Debug("Tracing enabled.", "endpoint", settings.Tracing.Endpoint)
	}
	if a.store != nil {
		execHooks = append(execHooks, hooks.NewPersist(a.store))
	}
	for _, mod := range modules {
		if h, ok := mod.(executor.Hook); ok {
			execHooks = append(execHooks, h)
		}
	}
	if d := settings.Dashboard; d.URL != "" {
		emitter, err := hooks.DialSocketIO(ctx, hooks.SocketIOOptions{
			URL:                d.URL,
			Namespace:          d.Namespace,
			InsecureSkipVerify: d.InsecureSkipVerify,
			ConnectTimeout:     d.ConnectTimeout,
		})
		if err != nil {
			// The dashboard is a viewer; runs go ahead without it.
			logger.Warn("Dashboard unavailable, continuing without live events.", "url", d.URL, "error", err)
		} else {
			a.dashboard = emitter
			execHooks = append(execHooks, hooks.NewDashboard(emitter))
		}
	}

	a.executor = executor.New(a.registry,
		executor.WithWorkers(settings.Executor.Workers),
		executor.WithHooks(execHooks...),
	)
	logger.Debug("Executor configured.", "workers", settings.Executor.Workers, "hooks", len(execHooks), "store", settings.Store.Backend)
	return a, nil
}

// openStore connects the configured result store backend. The "none"
// backend yields a nil store.
func openStore(ctx context.Context, s config.StoreSettings) (resultstore.Store, error) {
	switch s.Backend {
	case config.StoreNone:
		return nil, nil
	case config.StoreRedis:
		store, err := resultstore.NewRedis(ctx, resultstore.RedisOptions{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
			Prefix:   s.Redis.Prefix,
			TTL:      s.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("opening result store: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		store, err := resultstore.NewPostgres(ctx, s.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening result store: %w", err)
		}
		return store, nil
	default:
		return resultstore.NewMemory(), nil
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Store returns the result store, or nil when storage is disabled.
func (a *App) Store() resultstore.Store {
	return a.store
}

// Close releases every resource the app holds: database handles opened by
// nodes, the result store, the dashboard connection, the tracer and the
// health check server.
func (a *App) Close() error {
	a.logger.Debug("Closing application resources.")
	var errs []error
	for _, mod := range a.modules {
		if c, ok := mod.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.dashboard != nil {
		errs = append(errs, a.dashboard.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(a.ctx))
	}
	errs = append(errs, a.closeHealthCheckServer())
	return errors.Join(errs...)
}
