package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_ReverseOrderDespiteFailures(t *testing.T) {
	var logs bytes.Buffer
	var failedPhases []string
	l := New(slog.New(slog.NewTextHandler(&logs, nil)), func(phase string) { failedPhases = append(failedPhases, phase) })

	var ran []string
	l.AddShutdownHook("a", func(context.Context) error { ran = append(ran, "a"); return nil })
	l.ForPlugin("p").AddShutdownHook("b", func(context.Context) error { ran = append(ran, "b"); return errors.New("b failed") })
	l.AddShutdownHook("c", func(context.Context) error { ran = append(ran, "c"); panic("c exploded") })

	failures := l.Shutdown(context.Background())

	assert.Equal(t, []string{"c", "b", "a"}, ran)
	assert.Equal(t, 2, failures)
	assert.Equal(t, []string{"shutdown", "shutdown"}, failedPhases)
	assert.Contains(t, logs.String(), "b failed")
	assert.Contains(t, logs.String(), "c exploded")
	assert.Contains(t, logs.String(), "plugin=p")
}

func TestShutdown_RunsOnce(t *testing.T) {
	l := New(nil, nil)
	calls := 0
	l.AddShutdownHook("x", func(context.Context) error { calls++; return nil })

	l.Shutdown(context.Background())
	l.Shutdown(context.Background())
	assert.Equal(t, 1, calls)

	l.AddShutdownHook("late", func(context.Context) error { calls++; return nil })
	l.Shutdown(context.Background())
	assert.Equal(t, 1, calls)
}

func TestStartup(t *testing.T) {
	t.Run("runs in order", func(t *testing.T) {
		l := New(nil, nil)
		var ran []string
		l.AddStartupHook("one", func(context.Context) error { ran = append(ran, "one"); return nil })
		l.ForPlugin("p").AddStartupHook("two", func(context.Context) error { ran = append(ran, "two"); return nil })

		require.NoError(t, l.Startup(context.Background()))
		assert.Equal(t, []string{"one", "two"}, ran)
	})

	t.Run("first failure stops", func(t *testing.T) {
		boom := errors.New("boom")
		l := New(nil, nil)
		ran := 0
		l.ForPlugin("p").AddStartupHook("bad", func(context.Context) error { return boom })
		l.AddStartupHook("never", func(context.Context) error { ran++; return nil })

		err := l.Startup(context.Background())
		require.ErrorIs(t, err, boom)
		var se *errdefs.StartupError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "startup-hook", se.Stage)
		assert.Equal(t, "p", se.PluginID)
		assert.Zero(t, ran)
	})

	t.Run("late startup hook ignored", func(t *testing.T) {
		l := New(nil, nil)
		require.NoError(t, l.Startup(context.Background()))
		l.AddStartupHook("late", func(context.Context) error { t.Fatal("should not run"); return nil })
		require.NoError(t, l.Startup(context.Background()))
	})
}
