package service

import (
	"context"
	"fmt"

	"github.com/specialistvlad/backplane/internal/errdefs"
)

// Override is anything a caller may supply in place of a service factory: a
// ready-made *Factory, a FactoryFunc, or a literal built with Mock.
type Override interface {
	toFactory() (*Factory, error)
}

func (f *Factory) toFactory() (*Factory, error) {
	if f == nil || f.ref == nil {
		return nil, fmt.Errorf("nil service factory")
	}
	return f, nil
}

// FactoryFunc produces a factory on demand.
type FactoryFunc func() *Factory

func (fn FactoryFunc) toFactory() (*Factory, error) {
	if fn == nil {
		return nil, fmt.Errorf("nil service factory func")
	}
	return fn().toFactory()
}

type literal[T any] struct {
	ref  ServiceRef[T]
	impl T
}

func (l literal[T]) toFactory() (*Factory, error) {
	impl := l.impl
	return NewFactory(l.ref, nil, func(context.Context, Deps) (T, error) {
		return impl, nil
	}), nil
}

// Mock wraps a ready implementation as a dependency-free factory. This is how
// tests substitute fakes.
func Mock[T any](ref ServiceRef[T], impl T) Override {
	return literal[T]{ref: ref, impl: impl}
}

// ToFactory converts an override into a factory.
func ToFactory(o Override) (*Factory, error) {
	if o == nil {
		return nil, fmt.Errorf("nil service override")
	}
	return o.toFactory()
}

// Merge combines explicit overrides with built-in defaults. A default is kept
// only when no override claims its id. Two explicit entries, or two defaults,
// for the same id are a configuration error.
func Merge(overrides []Override, defaults []*Factory) ([]*Factory, error) {
	merged := make([]*Factory, 0, len(overrides)+len(defaults))
	explicit := make(map[string]struct{}, len(overrides))

	var dupes []string
	for _, o := range overrides {
		f, err := ToFactory(o)
		if err != nil {
			return nil, errdefs.NewConfigError(err.Error())
		}
		if _, seen := explicit[f.ID()]; seen {
			dupes = append(dupes, f.ID())
			continue
		}
		explicit[f.ID()] = struct{}{}
		merged = append(merged, f)
	}
	if len(dupes) > 0 {
		return nil, errdefs.NewConfigError("duplicate explicit service factories", dupes...)
	}

	seenDefault := make(map[string]struct{}, len(defaults))
	for _, f := range defaults {
		if f == nil {
			continue
		}
		if _, seen := seenDefault[f.ID()]; seen {
			dupes = append(dupes, f.ID())
			continue
		}
		seenDefault[f.ID()] = struct{}{}
		if _, ok := explicit[f.ID()]; ok {
			continue
		}
		merged = append(merged, f)
	}
	if len(dupes) > 0 {
		return nil, errdefs.NewConfigError("duplicate default service factories", dupes...)
	}
	return merged, nil
}
