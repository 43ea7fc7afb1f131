package rootserver

import (
	"net/http"
	"sync"
)

// PluginRouter mounts a single handler for one plugin under /api/<pluginID>.
type PluginRouter struct {
	server   *Server
	pluginID string

	once sync.Once
	err  error
}

// ForPlugin returns the router of pluginID.
func (s *Server) ForPlugin(pluginID string) *PluginRouter {
	return &PluginRouter{server: s, pluginID: pluginID}
}

// Path is the prefix the plugin's handler is served under.
func (p *PluginRouter) Path() string { return "/api/" + p.pluginID }

// Use mounts h. Only the first call takes effect; later calls return the
// result of the first.
func (p *PluginRouter) Use(h http.Handler) error {
	p.once.Do(func() {
		p.err = p.server.Use(p.Path(), h)
	})
	return p.err
}
