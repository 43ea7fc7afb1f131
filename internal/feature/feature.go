// Package feature defines the declaration surface of backend plugins and
// modules and normalizes declarations into uniform Registration records.
package feature

import (
	"context"

	"github.com/specialistvlad/backplane/internal/service"
)

const (
	// Marker tags every valid feature value.
	Marker = "@backplane/BackendFeature"
	// Version is the single supported feature schema version.
	Version = "v1"
)

// Feature is a closed union of *Plugin and *Module.
type Feature interface {
	FeatureMarker() string
	FeatureVersion() string
	sealed()
}

// InitFunc runs once per registration with its resolved dependencies.
type InitFunc func(ctx context.Context, deps service.Deps) error

// Plugin owns a plugin id and may expose extension points to its modules.
type Plugin struct {
	ID       string
	Register func(env *PluginEnv)

	marker  string
	version string
}

// NewPlugin declares a plugin feature.
func NewPlugin(id string, register func(env *PluginEnv)) *Plugin {
	return &Plugin{ID: id, Register: register, marker: Marker, version: Version}
}

func (p *Plugin) FeatureMarker() string  { return p.marker }
func (p *Plugin) FeatureVersion() string { return p.version }
func (p *Plugin) sealed()                {}

// Module extends the plugin named by PluginID.
type Module struct {
	PluginID string
	ModuleID string
	Register func(env *ModuleEnv)

	marker  string
	version string
}

// NewModule declares a module feature for pluginID.
func NewModule(pluginID, moduleID string, register func(env *ModuleEnv)) *Module {
	return &Module{PluginID: pluginID, ModuleID: moduleID, Register: register, marker: Marker, version: Version}
}

func (m *Module) FeatureMarker() string  { return m.marker }
func (m *Module) FeatureVersion() string { return m.version }
func (m *Module) sealed()                {}

// WithVersion returns a copy of f carrying a different schema version. It
// exists for features authored against another schema and for tests of the
// version check.
func WithVersion(f Feature, version string) Feature {
	switch v := f.(type) {
	case *Plugin:
		c := *v
		c.version = version
		return &c
	case *Module:
		c := *v
		c.version = version
		return &c
	default:
		return f
	}
}
