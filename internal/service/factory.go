package service

import (
	"context"
	"fmt"
	"maps"
)

// Deps holds resolved dependency instances keyed by the dependency name used
// in the declaring factory or init.
type Deps map[string]any

// Get returns the dependency registered under name as a T.
func Get[T any](deps Deps, name string) (T, error) {
	var zero T
	raw, ok := deps[name]
	if !ok {
		return zero, fmt.Errorf("dependency %q was not resolved", name)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %q has type %T, want %T", name, raw, zero)
	}
	return v, nil
}

// MustGet is Get for callers whose dependency map is statically known. It
// panics on a missing or mistyped dependency.
func MustGet[T any](deps Deps, name string) T {
	v, err := Get[T](deps, name)
	if err != nil {
		panic(err)
	}
	return v
}

// Factory knows how to build one service. Plugin-scoped factories may carry a
// root context that is created once per Backend and shared by every plugin
// instance.
type Factory struct {
	ref        Ref
	deps       map[string]Ref
	rootDeps   map[string]Ref
	createRoot func(ctx context.Context, deps Deps) (any, error)
	create     func(ctx context.Context, deps Deps, rootCtx any) (any, error)
}

// NewFactory creates a factory for ref. The scope of the factory is the scope
// of ref.
func NewFactory[T any](ref ServiceRef[T], deps map[string]Ref, fn func(ctx context.Context, deps Deps) (T, error)) *Factory {
	return &Factory{
		ref:  ref,
		deps: maps.Clone(deps),
		create: func(ctx context.Context, deps Deps, _ any) (any, error) {
			return fn(ctx, deps)
		},
	}
}

// NewPluginFactory creates a plugin-scoped factory with a root context stage.
// createRoot runs once per Backend with root-scoped rootDeps; fn runs once per
// plugin and receives the root context.
func NewPluginFactory[T, C any](
	ref ServiceRef[T],
	rootDeps map[string]Ref,
	createRoot func(ctx context.Context, deps Deps) (C, error),
	deps map[string]Ref,
	fn func(ctx context.Context, deps Deps, rootCtx C) (T, error),
) *Factory {
	return &Factory{
		ref:      ref,
		deps:     maps.Clone(deps),
		rootDeps: maps.Clone(rootDeps),
		createRoot: func(ctx context.Context, deps Deps) (any, error) {
			return createRoot(ctx, deps)
		},
		create: func(ctx context.Context, deps Deps, rootCtx any) (any, error) {
			c, ok := rootCtx.(C)
			if !ok && rootCtx != nil {
				return nil, fmt.Errorf("root context for %s has type %T", ref.ID(), rootCtx)
			}
			return fn(ctx, deps, c)
		},
	}
}

// Service returns the reference this factory produces.
func (f *Factory) Service() Ref { return f.ref }

// ID is shorthand for Service().ID().
func (f *Factory) ID() string { return f.ref.ID() }

// Scope is shorthand for Service().Scope().
func (f *Factory) Scope() Scope { return f.ref.Scope() }

// Deps returns a copy of the declared dependencies.
func (f *Factory) Deps() map[string]Ref { return maps.Clone(f.deps) }

// RootDeps returns a copy of the dependencies of the root context stage.
func (f *Factory) RootDeps() map[string]Ref { return maps.Clone(f.rootDeps) }

// HasRootContext reports whether the factory has a root context stage.
func (f *Factory) HasRootContext() bool { return f.createRoot != nil }

// CreateRootContext runs the root context stage. Factories without one
// return nil.
func (f *Factory) CreateRootContext(ctx context.Context, deps Deps) (any, error) {
	if f.createRoot == nil {
		return nil, nil
	}
	return f.createRoot(ctx, deps)
}

// Create builds one instance.
func (f *Factory) Create(ctx context.Context, deps Deps, rootCtx any) (any, error) {
	return f.create(ctx, deps, rootCtx)
}
