package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/backplane/internal/ctxlog"
	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/metrics"
	"github.com/specialistvlad/backplane/internal/resolver"
	"github.com/specialistvlad/backplane/internal/service"
)

type extEntry struct {
	owner string
	impl  any
}

type pluginPlan struct {
	id      string
	plugin  *feature.Registration
	modules []feature.Registration
}

// startPlan is the validated set of registrations grouped by plugin.
type startPlan struct {
	plugins []pluginPlan
	exts    map[string]extEntry
}

// plan groups regs by plugin id and checks them. Every problem found is
// reported in a single configuration error.
func (b *Backend) plan(ctx context.Context, regs []feature.Registration) (*startPlan, error) {
	logger := ctxlog.FromContext(ctx)

	var problems []string
	var ids []string
	report := func(msg string, offending ...string) {
		problems = append(problems, msg)
		ids = append(ids, offending...)
	}

	byPlugin := make(map[string]*pluginPlan)
	group := func(id string) *pluginPlan {
		p, ok := byPlugin[id]
		if !ok {
			p = &pluginPlan{id: id}
			byPlugin[id] = p
		}
		return p
	}

	exts := make(map[string]extEntry)
	modulesSeen := make(map[string]struct{})
	for i := range regs {
		reg := regs[i]
		p := group(reg.PluginID)

		switch reg.Kind {
		case feature.KindPlugin:
			if p.plugin != nil {
				report(fmt.Sprintf("plugin '%s' is registered more than once", reg.PluginID), reg.PluginID)
				continue
			}
			p.plugin = &reg
			for _, bnd := range reg.ExtensionPoints {
				if prev, dup := exts[bnd.Ref.ID()]; dup {
					report(fmt.Sprintf("extension point '%s' is provided by both plugin '%s' and plugin '%s'", bnd.Ref.ID(), prev.owner, reg.PluginID), bnd.Ref.ID())
					continue
				}
				exts[bnd.Ref.ID()] = extEntry{owner: reg.PluginID, impl: bnd.Impl}
			}
		case feature.KindModule:
			key := reg.PluginID + "/" + reg.ModuleID
			if _, dup := modulesSeen[key]; dup {
				report(fmt.Sprintf("%s is registered more than once", reg), reg.PluginID+"."+reg.ModuleID)
				continue
			}
			modulesSeen[key] = struct{}{}
			p.modules = append(p.modules, reg)
		}
	}

	// Externally supplied implementations shadow plugin-provided ones.
	for _, reg := range regs {
		if !reg.Synthetic {
			continue
		}
		for _, bnd := range reg.ExtensionPoints {
			if prev, ok := exts[bnd.Ref.ID()]; ok {
				logger.Debug("Extension point implementation overridden.", "extension_point", bnd.Ref.ID(), "provided_by", prev.owner)
			}
			exts[bnd.Ref.ID()] = extEntry{owner: reg.PluginID, impl: bnd.Impl}
		}
	}

	for _, p := range byPlugin {
		if p.plugin == nil && hasRealModules(p.modules) {
			logger.Warn("Modules registered for a plugin that is not installed.", "plugin", p.id)
		}
		if p.plugin != nil {
			for _, name := range sortedRefNames(p.plugin.Deps) {
				ref := p.plugin.Deps[name]
				if ref.Kind() == service.KindExtensionPoint {
					report(fmt.Sprintf("%s cannot depend on extension point '%s'; only modules can", p.plugin, ref.ID()), p.id, ref.ID())
				}
			}
		}
		for _, m := range p.modules {
			for _, name := range sortedRefNames(m.Deps) {
				ref := m.Deps[name]
				if ref.Kind() != service.KindExtensionPoint {
					continue
				}
				entry, ok := exts[ref.ID()]
				switch {
				case !ok:
					report(fmt.Sprintf("%s depends on extension point '%s', which is not provided", m, ref.ID()), ref.ID())
				case entry.owner != m.PluginID:
					report(fmt.Sprintf("%s depends on extension point '%s', which belongs to plugin '%s'", m, ref.ID(), entry.owner), ref.ID())
				}
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, errdefs.NewConfigError("invalid feature registrations:\n- "+strings.Join(problems, "\n- "), ids...)
	}

	plan := &startPlan{exts: exts}
	pluginIDs := make([]string, 0, len(byPlugin))
	for id := range byPlugin {
		pluginIDs = append(pluginIDs, id)
	}
	sort.Strings(pluginIDs)
	for _, id := range pluginIDs {
		plan.plugins = append(plan.plugins, *byPlugin[id])
	}
	logger.Debug("Feature registrations validated.", "plugins", len(pluginIDs), "extension_points", len(exts))
	return plan, nil
}

func hasRealModules(mods []feature.Registration) bool {
	for _, m := range mods {
		if !m.Synthetic {
			return true
		}
	}
	return false
}

// validateServiceDeps checks that every init dependency names a declared
// service.
func (p *startPlan) validateServiceDeps(r *resolver.Resolver) error {
	for _, pp := range p.plugins {
		for _, m := range pp.modules {
			if err := r.ValidateDeps(m.String(), m.Deps); err != nil {
				return err
			}
		}
		if pp.plugin != nil {
			if err := r.ValidateDeps(pp.plugin.String(), pp.plugin.Deps); err != nil {
				return err
			}
		}
	}
	return nil
}

// runInits runs, plugin by plugin in id order, every module init and then
// the plugin init.
func (p *startPlan) runInits(ctx context.Context, r *resolver.Resolver, m *metrics.Metrics) error {
	for _, pp := range p.plugins {
		pctx := service.WithPluginID(ctxlog.ForPlugin(ctx, pp.id), pp.id)

		for _, mod := range pp.modules {
			if err := p.runInit(pctx, r, m, mod); err != nil {
				return err
			}
		}
		if pp.plugin != nil {
			if err := p.runInit(pctx, r, m, *pp.plugin); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *startPlan) runInit(ctx context.Context, r *resolver.Resolver, m *metrics.Metrics, reg feature.Registration) error {
	logger := ctxlog.FromContext(ctx)

	deps := make(service.Deps, len(reg.Deps))
	for _, name := range sortedRefNames(reg.Deps) {
		ref := reg.Deps[name]
		if ref.Kind() == service.KindExtensionPoint {
			deps[name] = p.exts[ref.ID()].impl
			continue
		}
		v, err := r.Get(ctx, ref, reg.PluginID)
		if err != nil {
			return err
		}
		deps[name] = v
	}

	logger.Debug("Running init.", "feature", reg.String())
	start := time.Now()
	err := reg.Init(ctx, deps)
	m.RecordInit(string(reg.Kind), reg.PluginID, time.Since(start), err)
	if err != nil {
		return &errdefs.StartupError{Stage: "init", ID: reg.String(), PluginID: reg.PluginID, Err: err}
	}
	return nil
}

func sortedRefNames(m map[string]service.Ref) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
