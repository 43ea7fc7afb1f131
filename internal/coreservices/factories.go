package coreservices

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/discovery"
	"github.com/specialistvlad/backplane/internal/lifecycle"
	"github.com/specialistvlad/backplane/internal/metrics"
	"github.com/specialistvlad/backplane/internal/rootserver"
	"github.com/specialistvlad/backplane/internal/service"
)

// Core is what the Backend itself contributes to the service graph.
type Core struct {
	Logger  *slog.Logger
	Config  *config.Config
	Metrics *metrics.Metrics
}

// DefaultFactories returns the default factory of every built-in service.
func DefaultFactories(core Core) []*service.Factory {
	return []*service.Factory{
		service.NewFactory(RootLogger, nil, func(context.Context, service.Deps) (*slog.Logger, error) {
			return core.Logger, nil
		}),
		service.NewFactory(RootConfig, nil, func(context.Context, service.Deps) (*config.Config, error) {
			return core.Config, nil
		}),
		service.NewFactory(RootMetrics, nil, func(context.Context, service.Deps) (*metrics.Metrics, error) {
			return core.Metrics, nil
		}),
		rootLifecycleFactory(),
		rootHTTPRouterFactory(),
		discoveryFactory(),
		pluginMetadataFactory(),
		loggerFactory(),
		lifecycleFactory(),
		httpRouterFactory(),
	}
}

func rootLifecycleFactory() *service.Factory {
	deps := map[string]service.Ref{"logger": RootLogger, "metrics": RootMetrics}
	return service.NewFactory(RootLifecycle, deps, func(_ context.Context, d service.Deps) (*lifecycle.Lifecycle, error) {
		m := service.MustGet[*metrics.Metrics](d, "metrics")
		return lifecycle.New(service.MustGet[*slog.Logger](d, "logger"), m.RecordHookFailure), nil
	})
}

// rootHTTPRouterFactory binds the listener when the router is created so
// discovery can report the real port to plugin inits.
func rootHTTPRouterFactory() *service.Factory {
	deps := map[string]service.Ref{
		"config":    RootConfig,
		"lifecycle": RootLifecycle,
		"logger":    RootLogger,
		"metrics":   RootMetrics,
	}
	return service.NewFactory(RootHTTPRouter, deps, func(ctx context.Context, d service.Deps) (*rootserver.Server, error) {
		settings, err := config.LoadBackendSettings(service.MustGet[*config.Config](d, "config"))
		if err != nil {
			return nil, err
		}
		m := service.MustGet[*metrics.Metrics](d, "metrics")
		srv := rootserver.New(service.MustGet[*slog.Logger](d, "logger"), settings.Listen, m.Registry())

		if err := srv.Start(ctx); err != nil {
			return nil, err
		}
		service.MustGet[*lifecycle.Lifecycle](d, "lifecycle").AddShutdownHook("root-http-router", srv.Stop)
		return srv, nil
	})
}

func discoveryFactory() *service.Factory {
	deps := map[string]service.Ref{"router": RootHTTPRouter, "config": RootConfig}
	return service.NewFactory(Discovery, deps, func(_ context.Context, d service.Deps) (*discovery.Discovery, error) {
		return discovery.New(service.MustGet[*rootserver.Server](d, "router"), service.MustGet[*config.Config](d, "config"))
	})
}

func pluginMetadataFactory() *service.Factory {
	return service.NewFactory(PluginMeta, nil, func(ctx context.Context, _ service.Deps) (PluginMetadata, error) {
		id := service.PluginIDFrom(ctx)
		if id == "" {
			return PluginMetadata{}, fmt.Errorf("plugin metadata requested outside of a plugin")
		}
		return PluginMetadata{ID: id}, nil
	})
}

func loggerFactory() *service.Factory {
	deps := map[string]service.Ref{"root": RootLogger, "plugin": PluginMeta}
	return service.NewFactory(Logger, deps, func(_ context.Context, d service.Deps) (*slog.Logger, error) {
		meta := service.MustGet[PluginMetadata](d, "plugin")
		return service.MustGet[*slog.Logger](d, "root").With("plugin", meta.ID), nil
	})
}

func lifecycleFactory() *service.Factory {
	deps := map[string]service.Ref{"root": RootLifecycle, "plugin": PluginMeta}
	return service.NewFactory(Lifecycle, deps, func(_ context.Context, d service.Deps) (lifecycle.Service, error) {
		meta := service.MustGet[PluginMetadata](d, "plugin")
		return service.MustGet[*lifecycle.Lifecycle](d, "root").ForPlugin(meta.ID), nil
	})
}

func httpRouterFactory() *service.Factory {
	deps := map[string]service.Ref{"root": RootHTTPRouter, "plugin": PluginMeta}
	return service.NewFactory(HTTPRouter, deps, func(_ context.Context, d service.Deps) (*rootserver.PluginRouter, error) {
		meta := service.MustGet[PluginMetadata](d, "plugin")
		return service.MustGet[*rootserver.Server](d, "root").ForPlugin(meta.ID), nil
	})
}
