package registry

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modcrafter77/hyperspot/pkg/modkit/api"
	"github.com/modcrafter77/hyperspot/pkg/modkit/contracts"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
)

type dummyCore struct{}

func (dummyCore) Init(ctx context.Context, mctx *modctx.Context) error { return nil }

type dummyRest struct{ dummyCore }

func (dummyRest) RegisterRest(ctx context.Context, mctx *modctx.Context, r chi.Router, reg api.Registry) (chi.Router, error) {
	return r, nil
}

type dummyHost struct{ dummyCore }

func (dummyHost) RestPrepare(ctx context.Context, mctx *modctx.Context, r chi.Router) (chi.Router, error) {
	return r, nil
}

func (dummyHost) RestFinalize(ctx context.Context, mctx *modctx.Context, r chi.Router) (chi.Router, error) {
	return r, nil
}

func (dummyHost) Registry() api.Registry { return nil }

type dummyGrpc struct{ dummyCore }

func (dummyGrpc) GrpcServices(ctx context.Context, mctx *modctx.Context) ([]contracts.GrpcInstaller, error) {
	return nil, nil
}

func names(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestTopoSortHappyPath(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "core_a", Core: dummyCore{}})
	b.Register(Registration{Name: "core_b", Deps: []string{"core_a"}, Core: dummyCore{}})

	reg, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"core_a", "core_b"}, names(reg.Modules()))
}

func TestTopoSortStableOnTies(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "z", Core: dummyCore{}})
	b.Register(Registration{Name: "a", Core: dummyCore{}})
	b.Register(Registration{Name: "m", Core: dummyCore{}})

	reg, err := b.Build()
	require.NoError(t, err)
	// No edges: insertion order preserved.
	assert.Equal(t, []string{"z", "a", "m"}, names(reg.Modules()))
}

func TestTopoSoundness(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "d", Deps: []string{"b", "c"}, Core: dummyCore{}})
	b.Register(Registration{Name: "c", Deps: []string{"a"}, Core: dummyCore{}})
	b.Register(Registration{Name: "b", Deps: []string{"a"}, Core: dummyCore{}})
	b.Register(Registration{Name: "a", Core: dummyCore{}})

	reg, err := b.Build()
	require.NoError(t, err)

	pos := map[string]int{}
	for i, n := range names(reg.Modules()) {
		pos[n] = i
	}

	// Every dependency appears before its dependent.
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestUnknownDependency(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "core_a", Deps: []string{"missing_dep"}, Core: dummyCore{}})

	_, err := b.Build()
	require.Error(t, err)

	var depErr *UnknownDependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "core_a", depErr.Module)
	assert.Equal(t, "missing_dep", depErr.DependsOn)
}

func TestCycleDetected(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "a", Deps: []string{"b"}, Core: dummyCore{}})
	b.Register(Registration{Name: "b", Deps: []string{"a"}, Core: dummyCore{}})

	_, err := b.Build()
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Path, "a")
	assert.Contains(t, cycleErr.Path, "b")
	assert.GreaterOrEqual(t, len(cycleErr.Path), 3)
	assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1], "path closes on its start")
}

func TestComplexCycleExcludesUnrelated(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "a", Deps: []string{"b"}, Core: dummyCore{}})
	b.Register(Registration{Name: "b", Deps: []string{"c"}, Core: dummyCore{}})
	b.Register(Registration{Name: "c", Deps: []string{"a"}, Core: dummyCore{}})
	b.Register(Registration{Name: "d", Core: dummyCore{}})

	_, err := b.Build()
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)

	counts := map[string]int{}
	for _, n := range cycleErr.Path {
		counts[n]++
	}
	assert.Equal(t, 0, counts["d"], "unrelated module must not appear")
	// Each cycle member appears exactly once plus the closing repeat.
	total := counts["a"] + counts["b"] + counts["c"]
	assert.Equal(t, 4, total)
	assert.Contains(t, cycleErr.Error(), "->")
}

func TestDuplicateModule(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "a", Core: dummyCore{}})
	b.Register(Registration{Name: "a", Core: dummyCore{}})

	_, err := b.Build()
	require.Error(t, err)

	var invalidErr *InvalidRegistryError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Error(), "already registered")
}

func TestMultipleRestHosts(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "host1", Core: dummyHost{}})
	b.Register(Registration{Name: "host2", Core: dummyHost{}})

	_, err := b.Build()
	require.Error(t, err)

	var invalidErr *InvalidRegistryError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Error(), "only one REST host is allowed")
}

func TestRestRequiresHost(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "api", Core: dummyRest{}})

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrRestRequiresHost)
}

func TestGrpcRequiresHub(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "svc", Core: dummyGrpc{}})

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrGrpcRequiresHub)
}

func TestMultipleGrpcHubs(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "hub1", Core: dummyCore{}, GrpcHub: true})
	b.Register(Registration{Name: "hub2", Core: dummyCore{}, GrpcHub: true})

	_, err := b.Build()
	require.Error(t, err)

	var invalidErr *InvalidRegistryError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Error(), "only one gRPC hub is allowed")
}

func TestCapabilitiesFilledFromCore(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "host", Core: dummyHost{}})
	b.Register(Registration{Name: "api", Core: dummyRest{}})

	reg, err := b.Build()
	require.NoError(t, err)

	host, ok := reg.RestHost()
	require.True(t, ok)
	assert.Equal(t, "host", host.Name)
	assert.True(t, reg.HasRest())
}

func TestSystemPriorityOrdering(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "user1", Core: dummyCore{}})
	b.Register(Registration{Name: "sys1", Core: dummyCore{}, System: true})
	b.Register(Registration{Name: "user2", Deps: []string{"user1"}, Core: dummyCore{}})
	b.Register(Registration{Name: "sys2", Core: dummyCore{}, System: true})

	reg, err := b.Build()
	require.NoError(t, err)

	ordered := names(reg.ModulesBySystemPriority())
	assert.Equal(t, []string{"sys1", "sys2", "user1", "user2"}, ordered)
}

func TestGrpcHubRecorded(t *testing.T) {
	b := NewBuilder()
	b.Register(Registration{Name: "grpc_hub", Core: dummyCore{}, GrpcHub: true, System: true})
	b.Register(Registration{Name: "svc", Core: dummyGrpc{}})

	reg, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "grpc_hub", reg.GrpcHub)
	assert.Len(t, reg.GrpcServices(), 1)
}
