// Package resolver validates the service factory graph and instantiates
// services on demand, memoizing root instances per id and plugin instances
// per (id, plugin id).
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/specialistvlad/backplane/internal/dag"
	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/service"
)

// Instantiation describes one completed factory or root context call.
type Instantiation struct {
	ID          string
	PluginID    string
	Scope       service.Scope
	RootContext bool
	Elapsed     time.Duration
}

// Observer is notified after every successful instantiation.
type Observer func(Instantiation)

type instanceKey struct {
	id       string
	pluginID string
}

// Resolver owns every service instance of one Backend.
type Resolver struct {
	mu       sync.Mutex
	logger   *slog.Logger
	observer Observer

	factories map[string]*service.Factory
	order     []string
	validated bool

	roots    map[string]any
	plugins  map[instanceKey]any
	rootCtxs map[string]any
}

// New indexes factories by service id. Two factories for one id are a
// configuration error; callers merge overrides with defaults beforehand.
func New(factories []*service.Factory, logger *slog.Logger, observer Observer) (*Resolver, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Resolver{
		logger:    logger,
		observer:  observer,
		factories: make(map[string]*service.Factory, len(factories)),
		roots:     make(map[string]any),
		plugins:   make(map[instanceKey]any),
		rootCtxs:  make(map[string]any),
	}

	var dupes []string
	for _, f := range factories {
		if f == nil {
			continue
		}
		if _, ok := r.factories[f.ID()]; ok {
			dupes = append(dupes, f.ID())
			continue
		}
		r.factories[f.ID()] = f
	}
	if len(dupes) > 0 {
		return nil, errdefs.NewConfigError("more than one factory for service", dupes...)
	}
	return r, nil
}

// Validate checks that every dependency is declared, that scopes are
// respected and that the graph is acyclic. On success the instantiation order
// is fixed.
func (r *Resolver) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var problems []error
	g := dag.New()
	for id := range r.factories {
		g.AddNode(id)
	}

	for _, id := range r.sortedIDs() {
		f := r.factories[id]
		problems = append(problems, r.checkDeps(f, f.Deps(), false, g)...)
		if f.HasRootContext() {
			if f.Scope() != service.ScopePlugin {
				problems = append(problems, errdefs.NewConfigError("root context stage is only allowed on plugin-scoped factories", id))
			}
			problems = append(problems, r.checkDeps(f, f.RootDeps(), true, g)...)
		}
	}
	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		var ce *dag.CycleError
		if errors.As(err, &ce) {
			return errdefs.NewConfigError("circular service dependency: "+ce.Error(), uniq(ce.Path)...)
		}
		return err
	}

	r.order = order
	r.validated = true
	r.logger.Debug("Service graph validated.", "services", len(order))
	return nil
}

func (r *Resolver) checkDeps(f *service.Factory, deps map[string]service.Ref, rootStage bool, g *dag.Graph) []error {
	var problems []error
	for _, name := range sortedNames(deps) {
		ref := deps[name]
		switch {
		case ref.Kind() == service.KindExtensionPoint:
			problems = append(problems, errdefs.Configf([]string{f.ID(), ref.ID()}, "service factory dependency %q is an extension point", name))
			continue
		case (f.Scope() == service.ScopeRoot || rootStage) && ref.Scope() == service.ScopePlugin:
			problems = append(problems, errdefs.Configf([]string{f.ID(), ref.ID()}, "root-scoped dependency %q refers to a plugin-scoped service", name))
			continue
		}
		dep, ok := r.factories[ref.ID()]
		if !ok {
			problems = append(problems, errdefs.Configf([]string{f.ID(), ref.ID()}, "dependency %q refers to an undeclared service", name))
			continue
		}
		if dep.Scope() != ref.Scope() {
			problems = append(problems, errdefs.Configf([]string{f.ID(), ref.ID()}, "dependency %q is declared %s-scoped but provided %s-scoped", name, ref.Scope(), dep.Scope()))
			continue
		}
		if err := g.AddEdge(ref.ID(), f.ID()); err != nil {
			problems = append(problems, errdefs.Configf([]string{f.ID()}, "service depends on itself"))
		}
	}
	return problems
}

// ValidateDeps checks the dependencies of an init function declared by owner.
// Extension point dependencies are skipped; their availability is decided by
// the caller.
func (r *Resolver) ValidateDeps(owner string, deps map[string]service.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []string
	for _, name := range sortedNames(deps) {
		ref := deps[name]
		if ref.Kind() == service.KindExtensionPoint {
			continue
		}
		f, ok := r.factories[ref.ID()]
		if !ok {
			missing = append(missing, ref.ID())
			continue
		}
		if f.Scope() != ref.Scope() {
			return errdefs.Configf([]string{owner, ref.ID()}, "%s depends on %q with the wrong scope", owner, name)
		}
	}
	if len(missing) > 0 {
		return errdefs.Configf(missing, "%s depends on undeclared services", owner)
	}
	return nil
}

// Order returns the instantiation order computed by Validate.
func (r *Resolver) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Has reports whether a factory for id exists.
func (r *Resolver) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[id]
	return ok
}

// Get returns the instance of ref, creating it and its dependencies if
// needed. pluginID is required for plugin-scoped refs and ignored for root
// ones.
func (r *Resolver) Get(ctx context.Context, ref service.Ref, pluginID string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validated {
		return nil, fmt.Errorf("resolver: Get called before Validate")
	}
	return r.get(ctx, ref, pluginID)
}

// InstantiateRoot creates every root-scoped service in dependency order.
func (r *Resolver) InstantiateRoot(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validated {
		return fmt.Errorf("resolver: InstantiateRoot called before Validate")
	}
	for _, id := range r.order {
		f := r.factories[id]
		if f.Scope() != service.ScopeRoot {
			continue
		}
		if _, err := r.get(ctx, f.Service(), ""); err != nil {
			return err
		}
	}
	return nil
}

// Instance returns an existing instance without creating it.
func (r *Resolver) Instance(id, pluginID string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factories[id]
	if !ok {
		return nil, &errdefs.AccessError{ID: id, PluginID: pluginID, Reason: "no such service"}
	}
	if f.Scope() == service.ScopeRoot {
		if v, ok := r.roots[id]; ok {
			return v, nil
		}
		return nil, &errdefs.AccessError{ID: id, Reason: "not instantiated yet"}
	}
	if v, ok := r.plugins[instanceKey{id: id, pluginID: pluginID}]; ok {
		return v, nil
	}
	return nil, &errdefs.AccessError{ID: id, PluginID: pluginID, Reason: "not instantiated yet"}
}

func (r *Resolver) get(ctx context.Context, ref service.Ref, pluginID string) (any, error) {
	if ref.Kind() == service.KindExtensionPoint {
		return nil, &errdefs.AccessError{ID: ref.ID(), PluginID: pluginID, Reason: "extension points are not services"}
	}
	f, ok := r.factories[ref.ID()]
	if !ok {
		return nil, &errdefs.AccessError{ID: ref.ID(), PluginID: pluginID, Reason: "no such service"}
	}

	if f.Scope() == service.ScopeRoot {
		if v, ok := r.roots[f.ID()]; ok {
			return v, nil
		}
		v, err := r.create(ctx, f, "", nil)
		if err != nil {
			return nil, err
		}
		r.roots[f.ID()] = v
		return v, nil
	}

	if pluginID == "" {
		return nil, &errdefs.AccessError{ID: f.ID(), Reason: "plugin-scoped service requested without a plugin id"}
	}
	key := instanceKey{id: f.ID(), pluginID: pluginID}
	if v, ok := r.plugins[key]; ok {
		return v, nil
	}

	rootCtx, err := r.rootContext(ctx, f)
	if err != nil {
		return nil, err
	}
	v, err := r.create(ctx, f, pluginID, rootCtx)
	if err != nil {
		return nil, err
	}
	r.plugins[key] = v
	return v, nil
}

func (r *Resolver) rootContext(ctx context.Context, f *service.Factory) (any, error) {
	if !f.HasRootContext() {
		return nil, nil
	}
	if v, ok := r.rootCtxs[f.ID()]; ok {
		return v, nil
	}

	deps, err := r.resolveDeps(ctx, f.RootDeps(), "")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	v, err := f.CreateRootContext(ctx, deps)
	if err != nil {
		return nil, &errdefs.StartupError{Stage: "root-context", ID: f.ID(), Err: err}
	}
	r.rootCtxs[f.ID()] = v
	r.notify(Instantiation{ID: f.ID(), Scope: f.Scope(), RootContext: true, Elapsed: time.Since(start)})
	return v, nil
}

func (r *Resolver) create(ctx context.Context, f *service.Factory, pluginID string, rootCtx any) (any, error) {
	deps, err := r.resolveDeps(ctx, f.Deps(), pluginID)
	if err != nil {
		return nil, err
	}

	if pluginID != "" {
		ctx = service.WithPluginID(ctx, pluginID)
	}
	start := time.Now()
	v, err := f.Create(ctx, deps, rootCtx)
	if err != nil {
		return nil, &errdefs.StartupError{Stage: "factory", ID: f.ID(), PluginID: pluginID, Err: err}
	}
	r.notify(Instantiation{ID: f.ID(), PluginID: pluginID, Scope: f.Scope(), Elapsed: time.Since(start)})
	return v, nil
}

func (r *Resolver) resolveDeps(ctx context.Context, refs map[string]service.Ref, pluginID string) (service.Deps, error) {
	deps := make(service.Deps, len(refs))
	for _, name := range sortedNames(refs) {
		v, err := r.get(ctx, refs[name], pluginID)
		if err != nil {
			return nil, err
		}
		deps[name] = v
	}
	return deps, nil
}

func (r *Resolver) notify(ev Instantiation) {
	r.logger.Debug("Service instantiated.",
		"service", ev.ID,
		"plugin", ev.PluginID,
		"scope", ev.Scope.String(),
		"root_context", ev.RootContext,
		"elapsed", ev.Elapsed,
	)
	if r.observer != nil {
		r.observer(ev)
	}
}

func (r *Resolver) sortedIDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedNames(m map[string]service.Ref) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
