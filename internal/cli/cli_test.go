package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		args      []string
		wantPaths []string
		wantEnv   []string
		wantLevel string
	}{
		{
			name:      "positional paths",
			args:      []string{"base.yaml", "local.hcl"},
			wantPaths: []string{"base.yaml", "local.hcl"},
			wantEnv:   []string{".env"},
			wantLevel: "info",
		},
		{
			name:      "flags come before positional paths",
			args:      []string{"-config", "a.yaml", "-config", "conf.d", "-env-file", "prod.env", "-log-level", "DEBUG", "b.yaml"},
			wantPaths: []string{"a.yaml", "conf.d", "b.yaml"},
			wantEnv:   []string{"prod.env"},
			wantLevel: "debug",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, exit, err := Parse(tc.args, &bytes.Buffer{})
			require.NoError(t, err)
			assert.False(t, exit)
			assert.Equal(t, tc.wantPaths, cfg.ConfigPaths)
			assert.Equal(t, tc.wantEnv, cfg.EnvFiles)
			assert.Equal(t, tc.wantLevel, cfg.LogLevel)
			assert.Equal(t, "json", cfg.LogFormat)
		})
	}
}

func TestParse_ExitsCleanly(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {}} {
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown flag", args: []string{"-nope"}, wantErr: "flag provided but not defined: -nope"},
		{name: "bad level", args: []string{"-log-level", "trace", "a.yaml"}, wantErr: "invalid log-level"},
		{name: "bad format", args: []string{"-log-format", "xml", "a.yaml"}, wantErr: "invalid log-format"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}
