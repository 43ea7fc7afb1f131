// Package health is a plugin that serves readiness and liveness endpoints
// under /api/health. Modules contribute readiness checks through the
// health.checks extension point.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/specialistvlad/backplane/internal/coreservices"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/rootserver"
	"github.com/specialistvlad/backplane/internal/service"
)

// PluginID is the id the plugin registers under.
const PluginID = "health"

const checkTimeout = 5 * time.Second

// Check reports nil when the checked dependency is ready.
type Check func(ctx context.Context) error

// Checks is the extension point modules use to add readiness checks.
type Checks interface {
	Add(name string, check Check) error
}

// ChecksExtensionPoint is the health.checks extension point.
var ChecksExtensionPoint = service.NewExtensionPoint[Checks]("health.checks")

type checkSet struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func (s *checkSet) Add(name string, check Check) error {
	if check == nil {
		return fmt.Errorf("health check %q is nil", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.checks[name]; dup {
		return fmt.Errorf("health check %q already registered", name)
	}
	s.checks[name] = check
	return nil
}

// Result is the JSON body of the readiness endpoint.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *checkSet) run(ctx context.Context) Result {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	res := Result{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checks[name](cctx)
		cancel()
		if err != nil {
			res.Status = "error"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}
	return res
}

// New returns the health plugin.
func New() *feature.Plugin {
	return feature.NewPlugin(PluginID, func(env *feature.PluginEnv) {
		checks := &checkSet{checks: make(map[string]Check)}
		feature.ProvideExtensionPoint[Checks](env, ChecksExtensionPoint, checks)

		env.RegisterInit(map[string]service.Ref{
			"http":   coreservices.HTTPRouter,
			"logger": coreservices.Logger,
		}, func(_ context.Context, d service.Deps) error {
			logger := service.MustGet[*slog.Logger](d, "logger")
			router := service.MustGet[*rootserver.PluginRouter](d, "http")
			return router.Use(routes(checks, logger))
		})
	})
}

func routes(checks *checkSet, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Result{Status: "ok"})
	})
	r.Get("/readiness", func(w http.ResponseWriter, req *http.Request) {
		res := checks.run(req.Context())
		status := http.StatusOK
		if res.Status != "ok" {
			status = http.StatusServiceUnavailable
			logger.Warn("Readiness check failed.", "checks", res.Checks)
		}
		writeJSON(w, status, res)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
