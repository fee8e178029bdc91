package configwatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func TestApplyConfigPreservesUnchangedIdentity(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, ApplyConfig(&config.Config{
		Upstreams: []resource.Upstream{{ID: "u1", Nodes: map[string]int{"10.0.0.1:8080": 1}}},
	}, reg))

	original, ok := reg.Upstreams.Get("u1")
	require.True(t, ok)

	require.NoError(t, ApplyConfig(&config.Config{
		Upstreams: []resource.Upstream{
			{ID: "u1", Nodes: map[string]int{"10.0.0.1:8080": 1}},
			{ID: "u2", Nodes: map[string]int{"10.0.0.2:8080": 1}},
		},
	}, reg))

	afterReload, ok := reg.Upstreams.Get("u1")
	require.True(t, ok)
	require.Same(t, original, afterReload, "unchanged upstream should keep its pointer identity across a reload")

	u2, ok := reg.Upstreams.Get("u2")
	require.True(t, ok)
	require.Equal(t, "u2", u2.ID)
}

func TestApplyConfigReplacesChangedEntry(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, ApplyConfig(&config.Config{
		Upstreams: []resource.Upstream{{ID: "u1", Nodes: map[string]int{"10.0.0.1:8080": 1}}},
	}, reg))
	original, _ := reg.Upstreams.Get("u1")

	require.NoError(t, ApplyConfig(&config.Config{
		Upstreams: []resource.Upstream{{ID: "u1", Nodes: map[string]int{"10.0.0.1:9090": 1}}},
	}, reg))

	changed, ok := reg.Upstreams.Get("u1")
	require.True(t, ok)
	require.NotSame(t, original, changed, "changed upstream should get a fresh pointer")
	require.Equal(t, 1, changed.Nodes["10.0.0.1:9090"])
}

func TestApplyConfigRejectsInvalidWithoutMutatingRegistry(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, ApplyConfig(&config.Config{
		Upstreams: []resource.Upstream{{ID: "u1", Nodes: map[string]int{"10.0.0.1:8080": 1}}},
	}, reg))

	err := ApplyConfig(&config.Config{
		Upstreams: []resource.Upstream{{ID: "u1", Nodes: map[string]int{"10.0.0.1:8080": 1}}},
		Routes:    []resource.Route{{ID: "r1"}}, // missing uri and upstream binding
	}, reg)
	require.Error(t, err)

	_, ok := reg.Routes.Get("r1")
	require.False(t, ok, "invalid reload must not partially apply")
}
