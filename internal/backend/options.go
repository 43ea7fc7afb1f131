package backend

import (
	"log/slog"

	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/service"
)

type options struct {
	logger    *slog.Logger
	cfg       *config.Config
	overrides []service.Override
	bindings  []feature.Binding
	defaults  []*service.Factory
}

// Option configures a Backend.
type Option func(*options)

// WithLogger sets the root logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfig sets the root config. The default is empty, which binds the
// root HTTP server to an ephemeral port on all interfaces.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithServices supplies explicit service implementations. They take
// precedence over defaults with the same id; two overrides for one id fail
// Start.
func WithServices(overrides ...service.Override) Option {
	return func(o *options) { o.overrides = append(o.overrides, overrides...) }
}

// WithExtensionPoints supplies extension point implementations. Each one is
// attached to the plugin of the first module that depends on it.
func WithExtensionPoints(bindings ...feature.Binding) Option {
	return func(o *options) { o.bindings = append(o.bindings, bindings...) }
}

// WithDefaultFactories adds default factories. A factory here replaces the
// built-in default with the same id and is itself replaced by an explicit
// override.
func WithDefaultFactories(factories ...*service.Factory) Option {
	return func(o *options) { o.defaults = append(o.defaults, factories...) }
}
