// Package backendtest starts Backends for tests and tears them down again.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/specialistvlad/backplane/internal/backend"
	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/feature"
	"golang.org/x/sync/errgroup"
)

// LogsEnv enables dumping captured logs after each test when set to "true".
const LogsEnv = "BACKPLANE_TEST_LOGS"

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Registry tracks Backends so they can be stopped together. The caller owns
// it; there is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	backends []*backend.Backend
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{logger: logger}
}

// Track adds b to the registry.
func (r *Registry) Track(b *backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

// Len returns the number of tracked backends.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backends)
}

// StopAll stops every tracked Backend concurrently and forgets them. Backends
// that were never started or already stopped are skipped. Each failure is
// logged, and all of them are returned joined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	backends := r.backends
	r.backends = nil
	r.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, b := range backends {
		g.Go(func() error {
			err := b.Stop(ctx)
			if err == nil || errors.Is(err, errdefs.ErrNotStarted) || errors.Is(err, errdefs.ErrStopped) {
				return nil
			}
			r.logger.Error("Failed to stop backend.", "backend_id", b.ID(), "error", err)
			mu.Lock()
			errs = append(errs, fmt.Errorf("backend %s: %w", b.ID(), err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Options tune Start.
type Options struct {
	// Config is merged over a loopback listener on an ephemeral port.
	Config *config.Config
	// Backend options appended after the harness defaults.
	Backend []backend.Option
	// Registry, when set, also tracks the backend for StopAll. t.Cleanup
	// still stops it if StopAll was never called.
	Registry *Registry
}

// Start builds a Backend with a captured debug logger, adds features, starts
// it and registers cleanup on t. It fails the test if Start fails.
func Start(t testing.TB, opts Options, features ...feature.Feature) (*backend.Backend, *SafeBuffer) {
	t.Helper()
	b, logs := New(t, opts, features...)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("backend failed to start: %v\n--- logs ---\n%s", err, logs.String())
	}
	return b, logs
}

// New is Start without starting. The backend is still cleaned up.
func New(t testing.TB, opts Options, features ...feature.Feature) (*backend.Backend, *SafeBuffer) {
	t.Helper()

	logs := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := config.New(map[string]any{
		"backend": map[string]any{"listen": map[string]any{"host": "127.0.0.1", "port": 0}},
	}).Merge(opts.Config)

	bopts := append([]backend.Option{backend.WithLogger(logger), backend.WithConfig(cfg)}, opts.Backend...)
	b := backend.New(bopts...)
	for _, f := range features {
		if err := b.Add(f); err != nil {
			t.Fatalf("failed to add feature: %v", err)
		}
	}

	if opts.Registry != nil {
		opts.Registry.Track(b)
	}
	t.Cleanup(func() {
		// Registries usually stop their backends first; Stop then reports
		// ErrStopped and does nothing.
		_ = b.Stop(context.Background())
		if os.Getenv(LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return b, logs
}
