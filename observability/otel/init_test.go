package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "lendingd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken, =x,tenant=mm")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "mm"}, headers)
}

func TestResourceCarriesProtocolAttributes(t *testing.T) {
	res, err := Resource(Config{
		ServiceName:     "lendingd",
		Environment:     "test",
		ChainID:         43114,
		GovernanceAsset: " gov ",
		Modules:         map[string]bool{"votes": true, "lending": false},
	})
	require.NoError(t, err)

	set := res.Set()
	chain, ok := set.Value(ChainIDKey)
	require.True(t, ok)
	require.Equal(t, int64(43114), chain.AsInt64())
	asset, ok := set.Value(GovernanceAssetKey)
	require.True(t, ok)
	require.Equal(t, "GOV", asset.AsString())
	modules, ok := set.Value(ModulesKey)
	require.True(t, ok)
	require.Equal(t, []string{"lending", "votes"}, modules.AsStringSlice())
	paused, ok := set.Value(PausedModulesKey)
	require.True(t, ok)
	require.Equal(t, []string{"votes"}, paused.AsStringSlice())
}

func TestResourceOmitsUnsetProtocolAttributes(t *testing.T) {
	res, err := Resource(Config{ServiceName: "lendingd", Modules: map[string]bool{"lending": false}})
	require.NoError(t, err)
	set := res.Set()
	_, ok := set.Value(ChainIDKey)
	require.False(t, ok)
	_, ok = set.Value(PausedModulesKey)
	require.False(t, ok)
}

func TestSamplerBounds(t *testing.T) {
	require.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	require.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
