package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/backplane/internal/backend"
	"github.com/specialistvlad/backplane/internal/backendtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{ConfigPaths: []string{"a.yaml"}, LogLevel: "debug", LogFormat: "json"}},
		{name: "no paths", cfg: Config{LogFormat: "text"}, wantErr: "at least one config path"},
		{name: "bad level", cfg: Config{ConfigPaths: []string{"a"}, LogLevel: "trace", LogFormat: "text"}, wantErr: "invalid log-level"},
		{name: "bad format", cfg: Config{ConfigPaths: []string{"a"}, LogFormat: "xml"}, wantErr: "invalid log-format"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestApp_RunServesHealthUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "BACKPLANE_APP_TEST_HOST=127.0.0.1\n")
	cfgPath := writeFile(t, dir, "app-config.yaml", `
backend:
  listen:
    host: ${BACKPLANE_APP_TEST_HOST}
    port: 0
`)
	t.Cleanup(func() { os.Unsetenv("BACKPLANE_APP_TEST_HOST") })

	logs := &backendtest.SafeBuffer{}
	a, err := NewApp(context.Background(), logs, &Config{
		ConfigPaths: []string{cfgPath},
		EnvFiles:    []string{filepath.Join(dir, ".env"), filepath.Join(dir, "missing.env")},
		LogLevel:    "debug",
		LogFormat:   "text",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Backend().State() == backend.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	srv, err := a.Backend().Server()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", srv.Host())
	port, err := srv.Port()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health/readiness", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, backend.StateStopped, a.Backend().State())
	assert.Contains(t, logs.String(), "Backend running.")
}

func TestNewApp_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.hcl", "backend {\n")

	_, err := NewApp(context.Background(), &backendtest.SafeBuffer{}, &Config{
		ConfigPaths: []string{cfgPath},
		LogFormat:   "text",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestApp_RunReportsStartFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "app-config.yaml", "backend:\n  listen:\n    port: 70000\n")

	a, err := NewApp(context.Background(), &backendtest.SafeBuffer{}, &Config{
		ConfigPaths: []string{cfgPath},
		LogFormat:   "text",
	})
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "backend failed to start")
}
