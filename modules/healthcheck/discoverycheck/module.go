// Package discoverycheck is a module for the health plugin. It adds a
// readiness check that calls the health plugin's liveness endpoint through
// the URL reported by discovery, which proves the root server is reachable
// on the port it bound.
package discoverycheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/backplane/internal/coreservices"
	"github.com/specialistvlad/backplane/internal/discovery"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/service"
	"github.com/specialistvlad/backplane/modules/health"
)

// ModuleID is the id of this module.
const ModuleID = "discovery-check"

// New returns the module.
func New() *feature.Module {
	return feature.NewModule(health.PluginID, ModuleID, func(env *feature.ModuleEnv) {
		env.RegisterInit(map[string]service.Ref{
			"checks":    health.ChecksExtensionPoint,
			"discovery": coreservices.Discovery,
		}, func(_ context.Context, d service.Deps) error {
			checks := service.MustGet[health.Checks](d, "checks")
			disc := service.MustGet[*discovery.Discovery](d, "discovery")
			client := &http.Client{Timeout: 2 * time.Second}
			return checks.Add("discovery", func(ctx context.Context) error {
				return probe(ctx, client, disc)
			})
		})
	})
}

func probe(ctx context.Context, client *http.Client, disc *discovery.Discovery) error {
	base, err := disc.BaseURL(health.PluginID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/liveness", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness returned %s", resp.Status)
	}
	return nil
}
