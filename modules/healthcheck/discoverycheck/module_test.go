package discoverycheck_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/specialistvlad/backplane/internal/backendtest"
	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/modules/health"
	"github.com/specialistvlad/backplane/modules/healthcheck/discoverycheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readiness(t *testing.T, opts backendtest.Options) (int, health.Result) {
	t.Helper()
	b, _ := backendtest.Start(t, opts, health.New(), discoverycheck.New())
	srv, err := b.Server()
	require.NoError(t, err)
	port, err := srv.Port()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health/readiness", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	var res health.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func TestDiscoveryCheck_ReachesOwnServer(t *testing.T) {
	status, res := readiness(t, backendtest.Options{})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", res.Checks["discovery"])
}

func TestDiscoveryCheck_UnreachableEndpointFails(t *testing.T) {
	cfg := config.New(map[string]any{
		"discovery": map[string]any{
			"endpoints": map[string]any{"health": "http://127.0.0.1:1/api/health"},
		},
	})
	status, res := readiness(t, backendtest.Options{Config: cfg})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, res.Checks["discovery"], "failed to execute request")
}
