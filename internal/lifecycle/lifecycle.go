// Package lifecycle runs startup and shutdown hooks registered by services
// and plugins. Shutdown hooks run in strict reverse registration order and a
// failing hook never prevents the remaining ones from running.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/specialistvlad/backplane/internal/errdefs"
)

// Hook is a startup or shutdown callback.
type Hook func(ctx context.Context) error

// Service is the surface exposed to plugins. Both the root lifecycle and the
// per-plugin wrapper implement it.
type Service interface {
	AddStartupHook(label string, fn Hook)
	AddShutdownHook(label string, fn Hook)
}

type namedHook struct {
	label    string
	pluginID string
	fn       Hook
}

// FailureFunc is called for every failed hook with its phase.
type FailureFunc func(phase string)

// Lifecycle is the root lifecycle of a Backend.
type Lifecycle struct {
	mu        sync.Mutex
	logger    *slog.Logger
	onFailure FailureFunc

	startup  []namedHook
	shutdown []namedHook
	started  bool
	shutDown bool
}

// New creates an empty root lifecycle. onFailure may be nil.
func New(logger *slog.Logger, onFailure FailureFunc) *Lifecycle {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lifecycle{logger: logger, onFailure: onFailure}
}

// AddStartupHook registers fn to run once every plugin has been
// initialized. Hooks added after startup are ignored with a warning.
func (l *Lifecycle) AddStartupHook(label string, fn Hook) {
	l.add(&l.startup, namedHook{label: label, fn: fn}, "startup")
}

// AddShutdownHook registers fn to run when the Backend stops.
func (l *Lifecycle) AddShutdownHook(label string, fn Hook) {
	l.add(&l.shutdown, namedHook{label: label, fn: fn}, "shutdown")
}

func (l *Lifecycle) add(list *[]namedHook, h namedHook, phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h.fn == nil {
		l.logger.Warn("Ignoring nil lifecycle hook.", "phase", phase, "label", h.label, "plugin", h.pluginID)
		return
	}
	if (phase == "startup" && l.started) || l.shutDown {
		l.logger.Warn("Lifecycle hook registered too late, ignoring.", "phase", phase, "label", h.label, "plugin", h.pluginID)
		return
	}
	*list = append(*list, h)
}

// Startup runs startup hooks in registration order and stops at the first
// failure. It runs at most once.
func (l *Lifecycle) Startup(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	hooks := append([]namedHook(nil), l.startup...)
	l.mu.Unlock()

	for _, h := range hooks {
		l.logger.Debug("Running startup hook.", "label", h.label, "plugin", h.pluginID)
		if err := h.fn(ctx); err != nil {
			l.failed("startup")
			return &errdefs.StartupError{Stage: "startup-hook", ID: h.label, PluginID: h.pluginID, Err: err}
		}
	}
	return nil
}

// Shutdown runs shutdown hooks in reverse registration order. Failures are
// logged and counted, never returned. It reports how many hooks failed and
// runs at most once.
func (l *Lifecycle) Shutdown(ctx context.Context) int {
	l.mu.Lock()
	if l.shutDown {
		l.mu.Unlock()
		return 0
	}
	l.shutDown = true
	hooks := append([]namedHook(nil), l.shutdown...)
	l.mu.Unlock()

	failures := 0
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		l.logger.Debug("Running shutdown hook.", "label", h.label, "plugin", h.pluginID)
		if err := runSafely(ctx, h.fn); err != nil {
			failures++
			l.failed("shutdown")
			l.logger.Error("Shutdown hook failed.", "label", h.label, "plugin", h.pluginID, "error", err)
		}
	}
	if failures > 0 {
		l.logger.Warn("Shutdown finished with failures.", "failed", failures, "total", len(hooks))
	}
	return failures
}

func (l *Lifecycle) failed(phase string) {
	if l.onFailure != nil {
		l.onFailure(phase)
	}
}

func runSafely(ctx context.Context, fn Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// ForPlugin returns a Service that tags hooks with pluginID.
func (l *Lifecycle) ForPlugin(pluginID string) Service {
	return &pluginLifecycle{root: l, pluginID: pluginID}
}

type pluginLifecycle struct {
	root     *Lifecycle
	pluginID string
}

func (p *pluginLifecycle) AddStartupHook(label string, fn Hook) {
	p.root.add(&p.root.startup, namedHook{label: label, pluginID: p.pluginID, fn: fn}, "startup")
}

func (p *pluginLifecycle) AddShutdownHook(label string, fn Hook) {
	p.root.add(&p.root.shutdown, namedHook{label: label, pluginID: p.pluginID, fn: fn}, "shutdown")
}
