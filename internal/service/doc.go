// Package service declares the identities of services and extension points
// and the factories that build service instances.
//
// A ServiceRef[T] names a service by id and scope. Root-scoped services have a
// single instance per Backend; plugin-scoped services are built once for every
// plugin that depends on them. An ExtensionPoint[T] names a slot a plugin
// exposes to its modules and is always plugin scoped.
//
// Factories declare their dependencies as a map of names to Ref values and
// receive the resolved instances as Deps:
//
//	var Clock = service.NewRootRef[Clock]("core.clock")
//
//	service.NewFactory(Clock, map[string]service.Ref{"logger": RootLogger},
//	    func(ctx context.Context, deps service.Deps) (Clock, error) {
//	        return newClock(service.MustGet[*slog.Logger](deps, "logger")), nil
//	    })
//
// Callers replace services through the Override surface: a *Factory, a
// FactoryFunc, or Mock(ref, impl).
package service
