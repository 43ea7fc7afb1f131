package service

import "fmt"

// Scope controls how many instances of a service exist.
type Scope int

const (
	// ScopeRoot services have exactly one instance per Backend.
	ScopeRoot Scope = iota
	// ScopePlugin services have one instance per (service id, plugin id).
	ScopePlugin
)

func (s Scope) String() string {
	switch s {
	case ScopeRoot:
		return "root"
	case ScopePlugin:
		return "plugin"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Kind distinguishes services from extension points.
type Kind int

const (
	KindService Kind = iota
	KindExtensionPoint
)

func (k Kind) String() string {
	if k == KindExtensionPoint {
		return "extension point"
	}
	return "service"
}

// Ref is the untyped identity of a service or an extension point. Dependency
// maps are declared in terms of Ref so a single init can mix both.
type Ref interface {
	ID() string
	Scope() Scope
	Kind() Kind
}

// ServiceRef names a service whose instances have Go type T.
type ServiceRef[T any] struct {
	id    string
	scope Scope
}

// NewRef declares a plugin-scoped service reference.
func NewRef[T any](id string) ServiceRef[T] {
	return ServiceRef[T]{id: id, scope: ScopePlugin}
}

// NewRootRef declares a root-scoped service reference.
func NewRootRef[T any](id string) ServiceRef[T] {
	return ServiceRef[T]{id: id, scope: ScopeRoot}
}

func (r ServiceRef[T]) ID() string   { return r.id }
func (r ServiceRef[T]) Scope() Scope { return r.scope }
func (r ServiceRef[T]) Kind() Kind   { return KindService }

func (r ServiceRef[T]) String() string {
	return fmt.Sprintf("serviceRef{%s,%s}", r.id, r.scope)
}

// ExtensionPoint names a capability slot a plugin exposes to its modules.
// Extension points are always plugin scoped.
type ExtensionPoint[T any] struct {
	id string
}

// NewExtensionPoint declares an extension point.
func NewExtensionPoint[T any](id string) ExtensionPoint[T] {
	return ExtensionPoint[T]{id: id}
}

func (e ExtensionPoint[T]) ID() string   { return e.id }
func (e ExtensionPoint[T]) Scope() Scope { return ScopePlugin }
func (e ExtensionPoint[T]) Kind() Kind   { return KindExtensionPoint }

func (e ExtensionPoint[T]) String() string {
	return fmt.Sprintf("extensionPoint{%s}", e.id)
}
