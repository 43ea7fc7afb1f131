// Package discovery derives the base URL of each plugin's HTTP routes from
// the port the root server actually bound.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/specialistvlad/backplane/internal/config"
)

// PortSource is the part of the root server discovery needs.
type PortSource interface {
	Port() (int, error)
	Host() string
}

type endpoint struct {
	internal string
	external string
}

// Discovery resolves plugin base URLs.
type Discovery struct {
	src       PortSource
	publicURL string
	endpoints map[string]endpoint
}

// New reads backend.base_url and discovery.endpoints from cfg. An endpoint
// entry is either a URL string used for both lookups or an object with
// internal and external keys.
func New(src PortSource, cfg *config.Config) (*Discovery, error) {
	d := &Discovery{
		src:       src,
		publicURL: strings.TrimRight(cfg.StringOr("backend.base_url", ""), "/"),
		endpoints: make(map[string]endpoint),
	}

	eps := cfg.Sub("discovery.endpoints")
	for _, pluginID := range eps.Keys() {
		if s, ok, err := eps.String(pluginID); ok && err == nil {
			u := strings.TrimRight(s, "/")
			d.endpoints[pluginID] = endpoint{internal: u, external: u}
			continue
		}
		sub := eps.Sub(pluginID)
		ep := endpoint{
			internal: strings.TrimRight(sub.StringOr("internal", ""), "/"),
			external: strings.TrimRight(sub.StringOr("external", ""), "/"),
		}
		if ep.internal == "" && ep.external == "" {
			return nil, fmt.Errorf("discovery endpoint for plugin %s must be a URL or have internal/external keys", pluginID)
		}
		d.endpoints[pluginID] = ep
	}
	return d, nil
}

// BaseURL returns the URL other in-process callers use to reach pluginID.
// It fails with errdefs.ErrServerNotStarted until the root server listens.
func (d *Discovery) BaseURL(pluginID string) (string, error) {
	if ep, ok := d.endpoints[pluginID]; ok && ep.internal != "" {
		return ep.internal, nil
	}
	port, err := d.src.Port()
	if err != nil {
		return "", err
	}
	host := loopback(d.src.Host())
	return fmt.Sprintf("http://%s/api/%s", net.JoinHostPort(host, strconv.Itoa(port)), pluginID), nil
}

// ExternalBaseURL returns the URL for callers outside the process. Without
// backend.base_url it is the same as BaseURL.
func (d *Discovery) ExternalBaseURL(pluginID string) (string, error) {
	if ep, ok := d.endpoints[pluginID]; ok && ep.external != "" {
		return ep.external, nil
	}
	if d.publicURL != "" {
		return d.publicURL + "/api/" + pluginID, nil
	}
	return d.BaseURL(pluginID)
}

func loopback(host string) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		return "127.0.0.1"
	default:
		return strings.Trim(host, "[]")
	}
}
