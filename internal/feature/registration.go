package feature

import (
	"fmt"
	"maps"

	"github.com/specialistvlad/backplane/internal/service"
)

// Kind is the registration kind.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindModule Kind = "module"
)

// Binding pairs an extension point with its implementation.
type Binding struct {
	Ref  service.Ref
	Impl any
}

// Bind creates a typed extension point binding.
func Bind[T any](ext service.ExtensionPoint[T], impl T) Binding {
	return Binding{Ref: ext, Impl: impl}
}

// Registration is the normalized record of one feature.
type Registration struct {
	Kind            Kind
	PluginID        string
	ModuleID        string
	ExtensionPoints []Binding
	Deps            map[string]service.Ref
	Init            InitFunc
	// Synthetic marks registrations created by the runtime rather than
	// declared by a feature.
	Synthetic bool
}

// String names the registration for logs and errors.
func (r Registration) String() string {
	if r.Kind == KindModule {
		return fmt.Sprintf("module '%s' for plugin '%s'", r.ModuleID, r.PluginID)
	}
	return fmt.Sprintf("plugin '%s'", r.PluginID)
}

type initRegistration struct {
	deps map[string]service.Ref
	init InitFunc
}

// PluginEnv is handed to a plugin's registration callback.
type PluginEnv struct {
	exts  []Binding
	inits []initRegistration
}

// RegisterInit declares the plugin's init function and its dependencies.
func (e *PluginEnv) RegisterInit(deps map[string]service.Ref, init InitFunc) {
	e.inits = append(e.inits, initRegistration{deps: maps.Clone(deps), init: init})
}

// RegisterExtensionPoint exposes an extension point implementation to the
// plugin's modules.
func (e *PluginEnv) RegisterExtensionPoint(b Binding) {
	e.exts = append(e.exts, b)
}

// ProvideExtensionPoint is the typed form of RegisterExtensionPoint.
func ProvideExtensionPoint[T any](env *PluginEnv, ext service.ExtensionPoint[T], impl T) {
	env.RegisterExtensionPoint(Bind(ext, impl))
}

// ModuleEnv is handed to a module's registration callback.
type ModuleEnv struct {
	inits []initRegistration
}

// RegisterInit declares the module's init function and its dependencies.
// Dependencies may include extension points of the extended plugin.
func (e *ModuleEnv) RegisterInit(deps map[string]service.Ref, init InitFunc) {
	e.inits = append(e.inits, initRegistration{deps: maps.Clone(deps), init: init})
}
