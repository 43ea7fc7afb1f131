package extpoint

import (
	"context"
	"testing"

	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flags struct{ Flag bool }

var (
	extE = service.NewExtensionPoint[*flags]("a.e")
	extF = service.NewExtensionPoint[*flags]("f.unowned")
	extG = service.NewExtensionPoint[*flags]("b.g")
)

func moduleReg(pluginID, moduleID string, deps map[string]service.Ref) feature.Registration {
	return feature.Registration{Kind: feature.KindModule, PluginID: pluginID, ModuleID: moduleID, Deps: deps}
}

func TestResolve_AttachesToDependentModulePlugin(t *testing.T) {
	regs := []feature.Registration{
		{Kind: feature.KindPlugin, PluginID: "a", Deps: map[string]service.Ref{"e": extE}},
		moduleReg("a", "m", map[string]service.Ref{"e": extE}),
	}

	out, err := Resolve([]feature.Binding{feature.Bind(extE, &flags{Flag: true})}, regs)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "a", out[0].PluginID)
	assert.Equal(t, OverrideModuleID, out[0].ModuleID)
	assert.Equal(t, feature.KindModule, out[0].Kind)
	assert.True(t, out[0].Synthetic)
	assert.Empty(t, out[0].Deps)
	require.Len(t, out[0].ExtensionPoints, 1)
	assert.True(t, out[0].ExtensionPoints[0].Impl.(*flags).Flag)
	assert.NoError(t, out[0].Init(context.Background(), nil))
}

func TestResolve_PluginDependenciesDoNotClaimOwnership(t *testing.T) {
	regs := []feature.Registration{
		{Kind: feature.KindPlugin, PluginID: "a", Deps: map[string]service.Ref{"e": extE}},
	}

	_, err := Resolve([]feature.Binding{feature.Bind(extE, &flags{})}, regs)
	require.Error(t, err)
	assert.ErrorContains(t, err, "a.e")
}

func TestResolve_UnresolvedListsEveryID(t *testing.T) {
	regs := []feature.Registration{
		moduleReg("a", "m", map[string]service.Ref{"e": extE}),
	}
	bindings := []feature.Binding{
		feature.Bind(extE, &flags{}),
		feature.Bind(extF, &flags{}),
		feature.Bind(extG, &flags{}),
	}

	_, err := Resolve(bindings, regs)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfig(err))

	var ce *errdefs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"b.g", "f.unowned"}, ce.IDs)
}

func TestResolve_GroupsByPluginSorted(t *testing.T) {
	regs := []feature.Registration{
		moduleReg("zeta", "m1", map[string]service.Ref{"g": extG}),
		moduleReg("alpha", "m2", map[string]service.Ref{"e": extE, "f": extF}),
	}
	bindings := []feature.Binding{
		feature.Bind(extG, &flags{}),
		feature.Bind(extE, &flags{}),
		feature.Bind(extF, &flags{}),
	}

	out, err := Resolve(bindings, regs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].PluginID)
	assert.Len(t, out[0].ExtensionPoints, 2)
	assert.Equal(t, "zeta", out[1].PluginID)
	assert.Len(t, out[1].ExtensionPoints, 1)
}

func TestResolve_FirstDependentWins(t *testing.T) {
	regs := []feature.Registration{
		moduleReg("first", "m", map[string]service.Ref{"e": extE}),
		moduleReg("second", "m", map[string]service.Ref{"e": extE}),
	}

	out, err := Resolve([]feature.Binding{feature.Bind(extE, &flags{})}, regs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].PluginID)
}

func TestResolve_IsPure(t *testing.T) {
	deps := map[string]service.Ref{"e": extE}
	regs := []feature.Registration{moduleReg("a", "m", deps)}
	bindings := []feature.Binding{feature.Bind(extE, &flags{})}

	_, err := Resolve(bindings, regs)
	require.NoError(t, err)
	_, err = Resolve(bindings, regs)
	require.NoError(t, err)

	assert.Len(t, regs, 1)
	assert.Len(t, deps, 1)
}

func TestResolve_DuplicateBindings(t *testing.T) {
	regs := []feature.Registration{moduleReg("a", "m", map[string]service.Ref{"e": extE})}
	_, err := Resolve([]feature.Binding{feature.Bind(extE, &flags{}), feature.Bind(extE, &flags{})}, regs)
	assert.ErrorContains(t, err, "more than once")
}

func TestResolve_NoBindings(t *testing.T) {
	out, err := Resolve(nil, []feature.Registration{moduleReg("a", "m", nil)})
	require.NoError(t, err)
	assert.Empty(t, out)
}
