// Package rootserver is the HTTP server shared by every plugin of a Backend.
// Plugins mount handlers under their own prefix; the server binds its
// listener on startup and releases it on shutdown.
package rootserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/errdefs"
)

const shutdownTimeout = 5 * time.Second

// Server is the root HTTP router.
type Server struct {
	logger   *slog.Logger
	settings config.ListenSettings
	metrics  http.Handler

	// routeMu serializes mounts. Requests never take it; they serve from
	// the router snapshot in mux.
	routeMu sync.Mutex
	mounts  map[string]http.Handler
	mux     atomic.Pointer[chi.Mux]

	mu       sync.RWMutex
	listener net.Listener
	srv      *http.Server
	done     chan struct{}
}

// New builds a server with the default middleware stack and a /metrics
// endpoint backed by gatherer. gatherer may be nil.
func New(logger *slog.Logger, settings config.ListenSettings, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		logger:   logger,
		settings: settings,
		mounts:   make(map[string]http.Handler),
	}
	if gatherer != nil {
		s.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.mux.Store(s.build())
	return s
}

// build returns a fresh router holding every current mount. Callers hold
// routeMu, except New.
func (s *Server) build() *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(requestLogger(s.logger))
	mux.Use(recoverer(s.logger))
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, NotFound(fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)))
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, &HTTPError{Status: http.StatusMethodNotAllowed, Name: "MethodNotAllowedError", Message: "method not allowed"})
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	for path, h := range s.mounts {
		mux.Mount(path, http.StripPrefix(path, h))
	}
	return mux
}

// Use mounts h under path with the prefix stripped from the request URL.
// Each prefix may be mounted once and may not be nested inside another one.
// In-flight requests keep the router they started with.
func (s *Server) Use(path string, h http.Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for %s", path)
	}
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return fmt.Errorf("cannot mount a handler at the root path")
	}

	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	for _, existing := range s.paths() {
		if existing == path || strings.HasPrefix(path, existing+"/") || strings.HasPrefix(existing, path+"/") {
			return fmt.Errorf("path %s conflicts with already mounted %s", path, existing)
		}
	}
	s.mounts[path] = h
	s.mux.Store(s.build())
	s.logger.Debug("Handler mounted.", "path", path)
	return nil
}

func (s *Server) paths() []string {
	out := make([]string, 0, len(s.mounts)+1)
	if s.metrics != nil {
		out = append(out, "/metrics")
	}
	for p := range s.mounts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ServeHTTP implements http.Handler. Mounting is safe while serving.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}

// Mounts returns the mounted prefixes.
func (s *Server) Mounts() []string {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	return s.paths()
}

// Start binds the listener and serves in the background. Port 0 picks an
// ephemeral port.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server already listening on %s", s.listener.Addr())
	}

	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Root HTTP server failed unexpectedly", "error", err)
		}
	}()
	s.logger.Info("Root HTTP server listening", "address", ln.Addr().String())
	return nil
}

// Port returns the bound port.
func (s *Server) Port() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return 0, errdefs.ErrServerNotStarted
	}
	return s.listener.Addr().(*net.TCPAddr).Port, nil
}

// Addr returns the bound address as host:port.
func (s *Server) Addr() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return "", errdefs.ErrServerNotStarted
	}
	return s.listener.Addr().String(), nil
}

// Host returns the configured listen host, which may be empty.
func (s *Server) Host() string { return s.settings.Host }

// Stop shuts the server down gracefully, waiting at most five seconds for
// in-flight requests. Stopping a server that never started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		s.logger.Debug("Root HTTP server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down root HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Root HTTP server shutdown failed", "error", err)
		return err
	}
	<-done
	s.logger.Debug("Root HTTP server shut down gracefully.")
	return nil
}
