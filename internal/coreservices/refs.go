// Package coreservices declares the built-in services every Backend provides
// and their default factories. Plugins depend on these refs; tests replace
// them with service.Mock.
package coreservices

import (
	"log/slog"

	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/discovery"
	"github.com/specialistvlad/backplane/internal/lifecycle"
	"github.com/specialistvlad/backplane/internal/metrics"
	"github.com/specialistvlad/backplane/internal/rootserver"
	"github.com/specialistvlad/backplane/internal/service"
)

// PluginMetadata identifies the plugin a plugin-scoped instance belongs to.
type PluginMetadata struct {
	ID string
}

var (
	RootLogger     = service.NewRootRef[*slog.Logger]("core.rootLogger")
	RootConfig     = service.NewRootRef[*config.Config]("core.rootConfig")
	RootMetrics    = service.NewRootRef[*metrics.Metrics]("core.rootMetrics")
	RootLifecycle  = service.NewRootRef[*lifecycle.Lifecycle]("core.rootLifecycle")
	RootHTTPRouter = service.NewRootRef[*rootserver.Server]("core.rootHttpRouter")
	Discovery      = service.NewRootRef[*discovery.Discovery]("core.discovery")

	PluginMeta = service.NewRef[PluginMetadata]("core.pluginMetadata")
	Logger     = service.NewRef[*slog.Logger]("core.logger")
	Lifecycle  = service.NewRef[lifecycle.Service]("core.lifecycle")
	HTTPRouter = service.NewRef[*rootserver.PluginRouter]("core.httpRouter")
)
