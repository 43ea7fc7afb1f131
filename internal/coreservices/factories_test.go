package coreservices

import (
	"context"
	"log/slog"
	"testing"

	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/lifecycle"
	"github.com/specialistvlad/backplane/internal/metrics"
	"github.com/specialistvlad/backplane/internal/resolver"
	"github.com/specialistvlad/backplane/internal/rootserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	cfg := config.New(map[string]any{"backend": map[string]any{"listen": map[string]any{"host": "127.0.0.1"}}})
	r, err := resolver.New(DefaultFactories(Core{
		Logger:  slog.New(slog.DiscardHandler),
		Config:  cfg,
		Metrics: metrics.New("test"),
	}), nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Validate())
	return r
}

func TestDefaultFactories_RootRouterAndDiscovery(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()
	require.NoError(t, r.InstantiateRoot(ctx))

	lcRaw, err := r.Instance(RootLifecycle.ID(), "")
	require.NoError(t, err)
	lc := lcRaw.(*lifecycle.Lifecycle)
	t.Cleanup(func() { lc.Shutdown(ctx) })

	srvRaw, err := r.Instance(RootHTTPRouter.ID(), "")
	require.NoError(t, err)
	port, err := srvRaw.(*rootserver.Server).Port()
	require.NoError(t, err)
	assert.NotZero(t, port)

	order := r.Order()
	assert.Less(t, indexOf(order, RootLifecycle.ID()), indexOf(order, RootHTTPRouter.ID()))
	assert.Less(t, indexOf(order, RootHTTPRouter.ID()), indexOf(order, Discovery.ID()))
}

func TestDefaultFactories_PluginServices(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	meta, err := r.Get(ctx, PluginMeta, "catalog")
	require.NoError(t, err)
	assert.Equal(t, PluginMetadata{ID: "catalog"}, meta)

	router, err := r.Get(ctx, HTTPRouter, "catalog")
	require.NoError(t, err)
	assert.Equal(t, "/api/catalog", router.(*rootserver.PluginRouter).Path())

	lc, err := r.Get(ctx, Lifecycle, "catalog")
	require.NoError(t, err)
	assert.Implements(t, (*lifecycle.Service)(nil), lc)

	root, _ := r.Instance(RootLifecycle.ID(), "")
	t.Cleanup(func() { root.(*lifecycle.Lifecycle).Shutdown(ctx) })
}

func TestDefaultFactories_InvalidListenSettings(t *testing.T) {
	cfg := config.New(map[string]any{"backend": map[string]any{"listen": map[string]any{"port": 99999}}})
	r, err := resolver.New(DefaultFactories(Core{Logger: slog.New(slog.DiscardHandler), Config: cfg, Metrics: metrics.New("t")}), nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	_, err = r.Get(context.Background(), RootHTTPRouter, "")
	assert.ErrorContains(t, err, "between 0 and 65535")
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
