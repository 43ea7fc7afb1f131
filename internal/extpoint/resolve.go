// Package extpoint attaches externally supplied extension point
// implementations to the plugin that owns them.
//
// Ownership is inferred from module dependency edges: an extension point
// belongs to the plugin of the first module that depends on it. Resolution is
// a pure two-pass computation so it can be tested without a Backend.
package extpoint

import (
	"context"
	"sort"

	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/service"
)

// OverrideModuleID is the module id of every synthesized registration.
const OverrideModuleID = "extension-point-overrides"

// Resolve infers the owning plugin of every binding from the module
// registrations in regs and returns one synthetic module registration per
// owning plugin, sorted by plugin id. Any binding that no module depends on is
// reported in a single configuration error.
func Resolve(bindings []feature.Binding, regs []feature.Registration) ([]feature.Registration, error) {
	if len(bindings) == 0 {
		return nil, nil
	}

	// Pass 1: collect module dependency edges, first dependent wins.
	edges := make(map[string]string)
	for _, reg := range regs {
		if reg.Kind != feature.KindModule {
			continue
		}
		for _, name := range sortedKeys(reg.Deps) {
			ref := reg.Deps[name]
			if ref.Kind() != service.KindExtensionPoint {
				continue
			}
			if _, ok := edges[ref.ID()]; !ok {
				edges[ref.ID()] = reg.PluginID
			}
		}
	}

	// Pass 2: resolve pending bindings against the edge set.
	byPlugin := make(map[string][]feature.Binding)
	pending := make(map[string]struct{}, len(bindings))
	var dupes []string
	for _, b := range bindings {
		if b.Ref == nil || b.Ref.Kind() != service.KindExtensionPoint {
			return nil, errdefs.NewConfigError("extension point override is not an extension point")
		}
		id := b.Ref.ID()
		if _, seen := pending[id]; seen {
			dupes = append(dupes, id)
			continue
		}
		pending[id] = struct{}{}
	}
	if len(dupes) > 0 {
		return nil, errdefs.NewConfigError("extension point supplied more than once", dupes...)
	}

	for _, b := range bindings {
		owner, ok := edges[b.Ref.ID()]
		if !ok {
			continue
		}
		byPlugin[owner] = append(byPlugin[owner], b)
		delete(pending, b.Ref.ID())
	}

	if len(pending) > 0 {
		unresolved := make([]string, 0, len(pending))
		for id := range pending {
			unresolved = append(unresolved, id)
		}
		return nil, errdefs.NewConfigError(
			"unable to determine the plugin that owns these extension points; no module depends on them",
			unresolved...,
		)
	}

	owners := make([]string, 0, len(byPlugin))
	for owner := range byPlugin {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	out := make([]feature.Registration, 0, len(owners))
	for _, owner := range owners {
		out = append(out, feature.Registration{
			Kind:            feature.KindModule,
			PluginID:        owner,
			ModuleID:        OverrideModuleID,
			ExtensionPoints: byPlugin[owner],
			Init:            func(context.Context, service.Deps) error { return nil },
			Synthetic:       true,
		})
	}
	return out, nil
}

func sortedKeys(m map[string]service.Ref) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
