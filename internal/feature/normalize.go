package feature

import (
	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/service"
)

// Normalize validates f and invokes its registration callback, returning the
// resulting registrations. It has no side effects beyond calling the callback
// on a fresh environment, so it can be called repeatedly.
func Normalize(f Feature) ([]Registration, error) {
	if f == nil {
		return nil, errdefs.NewConfigError("nil feature")
	}
	if m := f.FeatureMarker(); m != Marker {
		return nil, errdefs.Configf(nil, "invalid feature marker %q, expected %q", m, Marker)
	}
	if v := f.FeatureVersion(); v != Version {
		return nil, errdefs.Configf(nil, "unsupported feature version %q, expected %q", v, Version)
	}

	switch feat := f.(type) {
	case *Plugin:
		return normalizePlugin(feat)
	case *Module:
		return normalizeModule(feat)
	default:
		return nil, errdefs.Configf(nil, "unknown feature type %T", f)
	}
}

func normalizePlugin(p *Plugin) ([]Registration, error) {
	if p.ID == "" {
		return nil, errdefs.NewConfigError("plugin id must not be empty")
	}
	if p.Register == nil {
		return nil, errdefs.Configf([]string{p.ID}, "plugin has no registration callback")
	}

	env := &PluginEnv{}
	p.Register(env)

	init, err := singleInit(env.inits, "plugin", p.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(env.exts))
	for _, b := range env.exts {
		if b.Ref == nil || b.Ref.Kind() != service.KindExtensionPoint {
			return nil, errdefs.Configf([]string{p.ID}, "plugin registered something that is not an extension point")
		}
		if _, dup := seen[b.Ref.ID()]; dup {
			return nil, errdefs.Configf([]string{p.ID, b.Ref.ID()}, "plugin registered extension point twice")
		}
		seen[b.Ref.ID()] = struct{}{}
	}

	return []Registration{{
		Kind:            KindPlugin,
		PluginID:        p.ID,
		ExtensionPoints: append([]Binding(nil), env.exts...),
		Deps:            init.deps,
		Init:            init.init,
	}}, nil
}

func normalizeModule(m *Module) ([]Registration, error) {
	if m.PluginID == "" || m.ModuleID == "" {
		return nil, errdefs.Configf(nil, "module must have both a plugin id and a module id, got %q/%q", m.PluginID, m.ModuleID)
	}
	if m.Register == nil {
		return nil, errdefs.Configf([]string{m.PluginID + "." + m.ModuleID}, "module has no registration callback")
	}

	env := &ModuleEnv{}
	m.Register(env)

	init, err := singleInit(env.inits, "module", m.PluginID+"."+m.ModuleID)
	if err != nil {
		return nil, err
	}

	return []Registration{{
		Kind:     KindModule,
		PluginID: m.PluginID,
		ModuleID: m.ModuleID,
		Deps:     init.deps,
		Init:     init.init,
	}}, nil
}

func singleInit(inits []initRegistration, kind, id string) (initRegistration, error) {
	if len(inits) != 1 {
		return initRegistration{}, errdefs.Configf([]string{id}, "%s must register exactly one init function, got %d", kind, len(inits))
	}
	if inits[0].init == nil {
		return initRegistration{}, errdefs.Configf([]string{id}, "%s registered a nil init function", kind)
	}
	for name, ref := range inits[0].deps {
		if ref == nil {
			return initRegistration{}, errdefs.Configf([]string{id}, "%s init dependency %q is nil", kind, name)
		}
	}
	return inits[0], nil
}
