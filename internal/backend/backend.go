// Package backend is the lifecycle orchestrator. A Backend collects plugin
// and module features, resolves extension point ownership, validates the
// service graph, instantiates services and runs init functions on Start, and
// runs shutdown hooks on Stop.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/coreservices"
	"github.com/specialistvlad/backplane/internal/ctxlog"
	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/extpoint"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/lifecycle"
	"github.com/specialistvlad/backplane/internal/metrics"
	"github.com/specialistvlad/backplane/internal/resolver"
	"github.com/specialistvlad/backplane/internal/rootserver"
	"github.com/specialistvlad/backplane/internal/service"
)

// Backend owns every service instance created for its features.
type Backend struct {
	id      string
	logger  *slog.Logger
	cfg     *config.Config
	metrics *metrics.Metrics
	opts    options

	mu        sync.Mutex
	state     State
	regs      []feature.Registration
	resolver  *resolver.Resolver
	lifecycle *lifecycle.Lifecycle
}

// New creates a Backend in the Created state.
func New(opts ...Option) *Backend {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.cfg == nil {
		o.cfg = config.Empty()
	}

	id := uuid.NewString()
	b := &Backend{
		id:      id,
		logger:  o.logger.With("backend_id", id),
		cfg:     o.cfg,
		metrics: metrics.New(id),
		opts:    o,
	}
	b.metrics.RecordState(int(StateCreated))
	return b
}

// ID returns the unique id of this Backend.
func (b *Backend) ID() string { return b.id }

// Metrics returns the Backend's Prometheus instruments.
func (b *Backend) Metrics() *metrics.Metrics { return b.metrics }

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Backend) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	b.metrics.RecordState(int(s))
	b.logger.Debug("Backend state changed.", "state", s.String())
}

// Add normalizes f and stores its registrations. Features cannot be added
// once Start has been called.
func (b *Backend) Add(f feature.Feature) error {
	regs, err := feature.Normalize(f)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateCreated {
		return fmt.Errorf("cannot add %s: %w", regs[0], errdefs.ErrAlreadyStarted)
	}
	b.regs = append(b.regs, regs...)
	b.logger.Debug("Feature added.", "feature", regs[0].String())
	return nil
}

// Start wires and initializes every added feature. It may be called once.
// On failure the Backend enters StateFailed and must not be reused, though
// Stop still releases whatever was acquired.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateCreated {
		b.mu.Unlock()
		return errdefs.ErrAlreadyStarted
	}
	b.state = StateStarting
	regs := append([]feature.Registration(nil), b.regs...)
	b.mu.Unlock()
	b.metrics.RecordState(int(StateStarting))

	ctx = ctxlog.WithLogger(ctx, b.logger)
	start := time.Now()
	b.logger.Info("Starting backend.", "features", len(regs))

	if err := b.start(ctx, regs); err != nil {
		b.setState(StateFailed)
		b.logger.Error("Backend failed to start.", "error", err)
		return err
	}

	b.setState(StateRunning)
	b.logger.Info("Backend started.", "elapsed", time.Since(start))
	return nil
}

func (b *Backend) start(ctx context.Context, regs []feature.Registration) error {
	factories, err := service.Merge(b.opts.overrides, b.defaultFactories())
	if err != nil {
		return err
	}

	synthetic, err := extpoint.Resolve(b.opts.bindings, regs)
	if err != nil {
		return err
	}
	regs = append(regs, synthetic...)

	plan, err := b.plan(ctx, regs)
	if err != nil {
		return err
	}

	r, err := resolver.New(factories, b.logger, b.observe)
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := plan.validateServiceDeps(r); err != nil {
		return err
	}

	b.mu.Lock()
	b.resolver = r
	b.mu.Unlock()

	rootErr := r.InstantiateRoot(ctx)
	// The lifecycle is captured even after a failure so Stop can release
	// what was already started.
	if err := b.captureLifecycle(r); err != nil && rootErr == nil {
		return err
	}
	if rootErr != nil {
		return rootErr
	}

	if err := plan.runInits(ctx, r, b.metrics); err != nil {
		return err
	}
	return b.lifecycle.Startup(ctx)
}

func (b *Backend) defaultFactories() []*service.Factory {
	core := coreservices.DefaultFactories(coreservices.Core{Logger: b.logger, Config: b.cfg, Metrics: b.metrics})
	if len(b.opts.defaults) == 0 {
		return core
	}
	replaced := make(map[string]struct{}, len(b.opts.defaults))
	out := make([]*service.Factory, 0, len(core)+len(b.opts.defaults))
	for _, f := range b.opts.defaults {
		if f == nil {
			continue
		}
		replaced[f.ID()] = struct{}{}
		out = append(out, f)
	}
	for _, f := range core {
		if _, ok := replaced[f.ID()]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func (b *Backend) captureLifecycle(r *resolver.Resolver) error {
	v, err := r.Instance(coreservices.RootLifecycle.ID(), "")
	if err != nil {
		return err
	}
	lc, ok := v.(*lifecycle.Lifecycle)
	if !ok {
		return fmt.Errorf("root lifecycle has type %T", v)
	}
	b.mu.Lock()
	b.lifecycle = lc
	b.mu.Unlock()
	return nil
}

func (b *Backend) observe(ev resolver.Instantiation) {
	if ev.RootContext {
		return
	}
	b.metrics.RecordInstantiation(ev.ID, ev.Scope.String(), ev.Elapsed)
}

// Stop runs every shutdown hook in reverse registration order. Hook failures
// are logged, never returned.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	prev := b.state
	switch prev {
	case StateCreated, StateStarting:
		b.mu.Unlock()
		return errdefs.ErrNotStarted
	case StateStopping, StateStopped:
		b.mu.Unlock()
		return errdefs.ErrStopped
	}
	b.state = StateStopping
	lc := b.lifecycle
	b.mu.Unlock()
	b.metrics.RecordState(int(StateStopping))

	ctx = ctxlog.WithLogger(ctx, b.logger)
	b.logger.Info("Stopping backend.", "previous_state", prev.String())
	if lc != nil {
		lc.Shutdown(ctx)
	}
	b.setState(StateStopped)
	b.logger.Info("Backend stopped.")
	return nil
}

// Server returns the root HTTP router. It fails with an access error until
// Start has created it.
func (b *Backend) Server() (*rootserver.Server, error) {
	return Instance(b, coreservices.RootHTTPRouter, "")
}

// Instance returns the existing instance of ref for pluginID without
// creating it. pluginID is ignored for root-scoped refs.
func Instance[T any](b *Backend, ref service.ServiceRef[T], pluginID string) (T, error) {
	var zero T

	b.mu.Lock()
	r := b.resolver
	b.mu.Unlock()
	if r == nil {
		return zero, &errdefs.AccessError{ID: ref.ID(), PluginID: pluginID, Reason: "backend not started"}
	}

	v, err := r.Instance(ref.ID(), pluginID)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &errdefs.AccessError{ID: ref.ID(), PluginID: pluginID, Reason: fmt.Sprintf("instance has type %T", v)}
	}
	return typed, nil
}
