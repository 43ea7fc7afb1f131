package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New("b-1")

	m.RecordInstantiation("core.rootLogger", "root", time.Millisecond)
	m.RecordInstantiation("core.logger", "plugin", time.Millisecond)
	m.RecordInstantiation("core.logger", "plugin", time.Millisecond)
	m.RecordInit("plugin", "health", time.Millisecond, nil)
	m.RecordInit("module", "health", time.Millisecond, errors.New("x"))
	m.RecordHookFailure("shutdown")
	m.RecordState(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServicesInstantiated.WithLabelValues("root")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ServicesInstantiated.WithLabelValues("plugin")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InitFailures.WithLabelValues("plugin", "health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InitFailures.WithLabelValues("module", "health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookFailures.WithLabelValues("shutdown")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BackendState))
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	a := New("a")
	b := New("b")
	a.RecordHookFailure("shutdown")

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "backplane_lifecycle_hook_failures_total" {
			t.Fatalf("registry b saw a's series")
		}
	}
}
