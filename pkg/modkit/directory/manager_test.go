package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRetrieve(t *testing.T) {
	mgr := NewManager()
	inst := NewInstance("parser", "i1").
		WithControl(TCP("localhost", 8080)).
		WithVersion("1.0.0")

	mgr.Register(inst)

	instances := mgr.InstancesOf("parser")
	require.Len(t, instances, 1)
	assert.Equal(t, "i1", instances[0].InstanceID)
	assert.Equal(t, "1.0.0", instances[0].Version)
	assert.Equal(t, StateRegistered, instances[0].State())
}

func TestRegisterReplacesByID(t *testing.T) {
	mgr := NewManager()

	mgr.Register(NewInstance("parser", "i1").WithVersion("1.0.0"))
	mgr.Register(NewInstance("parser", "i1").WithVersion("2.0.0"))

	instances := mgr.InstancesOf("parser")
	require.Len(t, instances, 1)
	assert.Equal(t, "2.0.0", instances[0].Version)
}

func TestHeartbeatPromotesRegistered(t *testing.T) {
	mgr := NewManager()
	mgr.Register(NewInstance("parser", "i1"))

	mgr.UpdateHeartbeat("parser", "i1", time.Now())

	assert.Equal(t, StateHealthy, mgr.InstancesOf("parser")[0].State())
}

func TestMarkReadyAndQuarantine(t *testing.T) {
	mgr := NewManager()
	mgr.Register(NewInstance("parser", "i1"))

	mgr.MarkReady("parser", "i1")
	assert.Equal(t, StateReady, mgr.InstancesOf("parser")[0].State())

	mgr.MarkQuarantined("parser", "i1")
	assert.Equal(t, StateQuarantined, mgr.InstancesOf("parser")[0].State())
}

func TestDeregisterDropsEmptyBucket(t *testing.T) {
	mgr := NewManager()
	mgr.Register(NewInstance("parser", "i1"))
	mgr.Register(NewInstance("parser", "i2"))

	mgr.Deregister("parser", "i1")
	assert.Len(t, mgr.InstancesOf("parser"), 1)

	mgr.Deregister("parser", "i2")
	assert.Empty(t, mgr.InstancesOf("parser"))
	assert.Empty(t, mgr.AllInstances())
}

func TestAllInstances(t *testing.T) {
	mgr := NewManager()
	mgr.Register(NewInstance("a", "i1"))
	mgr.Register(NewInstance("b", "i2"))
	mgr.Register(NewInstance("a", "i3"))

	all := mgr.AllInstances()
	assert.Len(t, all, 3)
}

func TestEvictStaleTwoStageDecay(t *testing.T) {
	ttl := 50 * time.Millisecond
	grace := 50 * time.Millisecond
	mgr := NewManager().WithHeartbeatPolicy(ttl, grace)

	now := time.Now()
	inst := NewInstance("parser", "i1")
	inst.setLastHeartbeat(now.Add(-ttl - 10*time.Millisecond))
	mgr.Register(inst)

	// First stage: quarantine at age >= ttl.
	mgr.EvictStale(now)
	instances := mgr.InstancesOf("parser")
	require.Len(t, instances, 1)
	assert.Equal(t, StateQuarantined, instances[0].State())

	// Second stage: eviction at age >= ttl + grace.
	mgr.EvictStale(now.Add(grace + 10*time.Millisecond))
	assert.Empty(t, mgr.InstancesOf("parser"))
}

func TestEvictStaleExactBoundaries(t *testing.T) {
	ttl := time.Second
	grace := time.Second
	mgr := NewManager().WithHeartbeatPolicy(ttl, grace)

	base := time.Now()
	inst := NewInstance("parser", "i1")
	inst.setLastHeartbeat(base)
	inst.heartbeat(base)
	mgr.Register(inst)

	// Just below the TTL: still healthy.
	mgr.EvictStale(base.Add(ttl - time.Millisecond))
	assert.Equal(t, StateHealthy, mgr.InstancesOf("parser")[0].State())

	// Exactly at the TTL: quarantined.
	mgr.EvictStale(base.Add(ttl))
	assert.Equal(t, StateQuarantined, mgr.InstancesOf("parser")[0].State())

	// Just below ttl+grace: kept.
	mgr.EvictStale(base.Add(ttl + grace - time.Millisecond))
	assert.Len(t, mgr.InstancesOf("parser"), 1)

	// Exactly at ttl+grace: removed.
	mgr.EvictStale(base.Add(ttl + grace))
	assert.Empty(t, mgr.InstancesOf("parser"))
}

func TestEvictStaleSkipsDraining(t *testing.T) {
	ttl := time.Second
	mgr := NewManager().WithHeartbeatPolicy(ttl, time.Second)

	now := time.Now()
	inst := NewInstance("parser", "i1")
	inst.setLastHeartbeat(now.Add(-10 * ttl))
	mgr.Register(inst)
	mgr.MarkDraining("parser", "i1")

	mgr.EvictStale(now)
	require.Len(t, mgr.InstancesOf("parser"), 1)
	assert.Equal(t, StateDraining, mgr.InstancesOf("parser")[0].State())
}

func TestPickInstanceRoundRobinFairness(t *testing.T) {
	mgr := NewManager()
	for _, id := range []string{"i1", "i2"} {
		mgr.Register(NewInstance("parser", id))
		mgr.UpdateHeartbeat("parser", id, time.Now())
	}

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		picked := mgr.PickInstanceRoundRobin("parser")
		require.NotNil(t, picked)
		counts[picked.InstanceID]++
	}

	assert.Equal(t, 5, counts["i1"])
	assert.Equal(t, 5, counts["i2"])
}

func TestPickInstancePrefersSelectable(t *testing.T) {
	mgr := NewManager()

	mgr.Register(NewInstance("parser", "healthy"))
	mgr.UpdateHeartbeat("parser", "healthy", time.Now())

	mgr.Register(NewInstance("parser", "bad"))
	mgr.MarkQuarantined("parser", "bad")

	for i := 0; i < 5; i++ {
		picked := mgr.PickInstanceRoundRobin("parser")
		require.NotNil(t, picked)
		assert.Equal(t, "healthy", picked.InstanceID)
	}
}

func TestPickInstanceFallsBackToFullSet(t *testing.T) {
	mgr := NewManager()
	mgr.Register(NewInstance("parser", "i1"))
	mgr.MarkQuarantined("parser", "i1")

	picked := mgr.PickInstanceRoundRobin("parser")
	require.NotNil(t, picked, "with no selectable instances the full set is considered")
	assert.Equal(t, "i1", picked.InstanceID)
}

func TestPickInstanceNone(t *testing.T) {
	mgr := NewManager()
	assert.Nil(t, mgr.PickInstanceRoundRobin("missing"))
}

func TestRoundRobinWithQuarantine(t *testing.T) {
	mgr := NewManager()
	for _, id := range []string{"i1", "i2", "i3"} {
		mgr.Register(NewInstance("m", id))
		mgr.UpdateHeartbeat("m", id, time.Now())
	}

	mgr.MarkQuarantined("m", "i2")

	counts := map[string]int{}
	for i := 0; i < 12; i++ {
		picked := mgr.PickInstanceRoundRobin("m")
		require.NotNil(t, picked)
		counts[picked.InstanceID]++
	}

	assert.Zero(t, counts["i2"], "quarantined instance must never be picked")
	assert.GreaterOrEqual(t, counts["i1"], 5)
	assert.GreaterOrEqual(t, counts["i3"], 5)
}

func TestPickServiceRoundRobin(t *testing.T) {
	mgr := NewManager()

	mgr.Register(NewInstance("m", "i1").WithService("dir.v1.Directory", TCP("127.0.0.1", 8001)))
	mgr.Register(NewInstance("m", "i2").WithService("dir.v1.Directory", TCP("127.0.0.1", 8002)))
	mgr.UpdateHeartbeat("m", "i1", time.Now())
	mgr.UpdateHeartbeat("m", "i2", time.Now())

	_, first, ep1, ok := mgr.PickServiceRoundRobin("dir.v1.Directory")
	require.True(t, ok)
	_, second, ep2, ok := mgr.PickServiceRoundRobin("dir.v1.Directory")
	require.True(t, ok)
	_, third, _, ok := mgr.PickServiceRoundRobin("dir.v1.Directory")
	require.True(t, ok)

	assert.NotEqual(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, first.InstanceID, third.InstanceID)
	assert.NotEqual(t, ep1, ep2)
}

func TestPickServiceExcludesUnhealthy(t *testing.T) {
	mgr := NewManager()
	mgr.Register(NewInstance("m", "i1").WithService("svc", TCP("127.0.0.1", 8001)))
	mgr.MarkQuarantined("m", "i1")

	_, _, _, ok := mgr.PickServiceRoundRobin("svc")
	assert.False(t, ok)
}

func TestEndpointKinds(t *testing.T) {
	kind, addr := TCP("127.0.0.1", 8080).Kind()
	assert.Equal(t, KindTCP, kind)
	assert.Equal(t, "127.0.0.1:8080", addr)

	kind, path := UDS("/tmp/test.sock").Kind()
	assert.Equal(t, KindUDS, kind)
	assert.Equal(t, "/tmp/test.sock", path)

	kind, name := FromURI("pipe://hyperspot").Kind()
	assert.Equal(t, KindPipe, kind)
	assert.Equal(t, "hyperspot", name)

	kind, raw := FromURI("grpc://example.com").Kind()
	assert.Equal(t, KindOpaque, kind)
	assert.Equal(t, "grpc://example.com", raw)

	// http without a parseable host:port stays opaque.
	kind, _ = FromURI("http://example.com").Kind()
	assert.Equal(t, KindOpaque, kind)
}
