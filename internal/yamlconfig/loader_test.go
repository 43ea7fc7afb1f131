package yamlconfig

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	path := write(t, t.TempDir(), "app-config.yaml", `
backend:
  baseUrl: http://${HOST}:7007
  listen:
    port: 7007
  cors: ~
list: [1, two]
`)
	l := NewLoader().WithLookup(func(name string) (string, bool) {
		if name == "HOST" {
			return "localhost", true
		}
		return "", false
	})

	got, err := l.LoadFile(testCtx(), path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"backend": map[string]any{
			"baseUrl": "http://localhost:7007",
			"listen":  map[string]any{"port": 7007},
		},
		"list": []any{1, "two"},
	}, got)
}

func TestLoader_EmptyAndInvalid(t *testing.T) {
	dir := t.TempDir()

	got, err := NewLoader().LoadFile(testCtx(), write(t, dir, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewLoader().LoadFile(testCtx(), write(t, dir, "bad.yaml", "backend: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse YAML file")

	_, err = NewLoader().LoadFile(testCtx(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoader_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", "backend:\n  listen:\n    port: 1\n    host: 127.0.0.1\n")
	write(t, dir, "b.yml", "backend:\n  listen:\n    port: 2\n")

	cfg, err := config.NewMultiLoader(NewLoader()).Load(testCtx(), dir)
	require.NoError(t, err)

	s, err := config.LoadBackendSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.ListenSettings{Host: "127.0.0.1", Port: 2}, s.Listen)
}

func TestLoader_ExpandsOnlyBracedVariables(t *testing.T) {
	path := write(t, t.TempDir(), "db.yaml", `
db:
  password: "pa$word"
  price: "$5"
  home: "$HOME"
  user: "${USER}"
  literal: "$${USER}"
  missing: "x${NOPE}y"
`)
	l := NewLoader().WithLookup(func(name string) (string, bool) {
		switch name {
		case "USER":
			return "backstage", true
		case "HOME", "word":
			return "expanded", true
		}
		return "", false
	})

	got, err := l.LoadFile(testCtx(), path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"db": map[string]any{
			"password": "pa$word",
			"price":    "$5",
			"home":     "$HOME",
			"user":     "backstage",
			"literal":  "${USER}",
			"missing":  "xy",
		},
	}, got)
}
