package directory

import (
	"sort"
	"sync"
	"time"

	"github.com/modcrafter77/hyperspot/pkg/metrics"
)

const (
	// DefaultHeartbeatTTL is the heartbeat age at which an instance is quarantined.
	DefaultHeartbeatTTL = 15 * time.Second
	// DefaultHeartbeatGrace is the extra age after which a quarantined instance is evicted.
	DefaultHeartbeatGrace = 30 * time.Second
)

// Manager is the process-wide instance directory. Instances are bucketed by
// module name; every bucket has its own lock, and round-robin counters live
// under a separate counter lock.
type Manager struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	counterMu sync.Mutex
	counters  map[string]int

	hbTTL   time.Duration
	hbGrace time.Duration
}

type bucket struct {
	mu        sync.Mutex
	instances []*Instance
}

// NewManager creates a directory with the default heartbeat policy.
func NewManager() *Manager {
	return &Manager{
		buckets:  make(map[string]*bucket),
		counters: make(map[string]int),
		hbTTL:    DefaultHeartbeatTTL,
		hbGrace:  DefaultHeartbeatGrace,
	}
}

// WithHeartbeatPolicy overrides the (ttl, grace) eviction policy.
func (m *Manager) WithHeartbeatPolicy(ttl, grace time.Duration) *Manager {
	m.hbTTL = ttl
	m.hbGrace = grace
	return m
}

func (m *Manager) bucketFor(module string, create bool) *bucket {
	m.mu.RLock()
	b := m.buckets[module]
	m.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.buckets[module]; b == nil {
		b = &bucket{}
		m.buckets[module] = b
	}
	return b
}

// reportSize mirrors a module's instance count to the metrics gauge.
func reportSize(module string, n int) {
	if mm := metrics.Default(); mm != nil {
		mm.InstancesTracked.WithLabelValues(module).Set(float64(n))
	}
}

// dropSize removes the metrics series of an emptied module.
func dropSize(module string) {
	if mm := metrics.Default(); mm != nil {
		mm.InstancesTracked.DeleteLabelValues(module)
	}
}

// Register adds or replaces an instance, keyed by (module, instance id).
func (m *Manager) Register(inst *Instance) {
	b := m.bucketFor(inst.Module, true)
	b.mu.Lock()
	defer b.mu.Unlock()

	for idx, existing := range b.instances {
		if existing.InstanceID == inst.InstanceID {
			b.instances[idx] = inst
			return
		}
	}
	b.instances = append(b.instances, inst)
	reportSize(inst.Module, len(b.instances))
}

// MarkReady sets an instance to the Ready state.
func (m *Manager) MarkReady(module, instanceID string) {
	if inst := m.find(module, instanceID); inst != nil {
		inst.setState(StateReady)
	}
}

// MarkQuarantined forces an instance into quarantine.
func (m *Manager) MarkQuarantined(module, instanceID string) {
	if inst := m.find(module, instanceID); inst != nil {
		inst.setState(StateQuarantined)
	}
}

// MarkDraining sets an instance to Draining; it is never auto-promoted back.
func (m *Manager) MarkDraining(module, instanceID string) {
	if inst := m.find(module, instanceID); inst != nil {
		inst.setState(StateDraining)
	}
}

// UpdateHeartbeat records a heartbeat; a Registered instance becomes Healthy.
func (m *Manager) UpdateHeartbeat(module, instanceID string, at time.Time) {
	if inst := m.find(module, instanceID); inst != nil {
		inst.heartbeat(at)
	}
}

// Deregister removes an instance. When the module has no instances left, its
// bucket and round-robin counter are dropped as well.
func (m *Manager) Deregister(module, instanceID string) {
	b := m.bucketFor(module, false)
	if b == nil {
		return
	}

	b.mu.Lock()
	kept := b.instances[:0]
	for _, inst := range b.instances {
		if inst.InstanceID != instanceID {
			kept = append(kept, inst)
		}
	}
	b.instances = kept
	empty := len(b.instances) == 0
	if !empty {
		reportSize(module, len(b.instances))
	}
	b.mu.Unlock()

	if empty {
		m.dropBucket(module)
	}
}

func (m *Manager) dropBucket(module string) {
	m.mu.Lock()
	delete(m.buckets, module)
	m.mu.Unlock()

	m.counterMu.Lock()
	delete(m.counters, module)
	m.counterMu.Unlock()

	dropSize(module)
}

func (m *Manager) find(module, instanceID string) *Instance {
	b := m.bucketFor(module, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, inst := range b.instances {
		if inst.InstanceID == instanceID {
			return inst
		}
	}
	return nil
}

// InstancesOf returns a snapshot of a module's instances.
func (m *Manager) InstancesOf(module string) []*Instance {
	b := m.bucketFor(module, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Instance, len(b.instances))
	copy(out, b.instances)
	return out
}

// AllInstances returns a snapshot of every instance across modules.
func (m *Manager) AllInstances() []*Instance {
	m.mu.RLock()
	modules := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		modules = append(modules, name)
	}
	m.mu.RUnlock()
	sort.Strings(modules)

	var out []*Instance
	for _, name := range modules {
		out = append(out, m.InstancesOf(name)...)
	}
	return out
}

// EvictStale applies the two-stage decay: instances whose heartbeat age
// reaches ttl are quarantined; quarantined instances whose age reaches
// ttl+grace are removed.
func (m *Manager) EvictStale(now time.Time) {
	m.mu.RLock()
	modules := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		modules = append(modules, name)
	}
	m.mu.RUnlock()

	for _, module := range modules {
		b := m.bucketFor(module, false)
		if b == nil {
			continue
		}

		b.mu.Lock()
		kept := b.instances[:0]
		for _, inst := range b.instances {
			age := now.Sub(inst.LastHeartbeat())
			state := inst.State()

			if age >= m.hbTTL && state != StateQuarantined && state != StateDraining {
				inst.setState(StateQuarantined)
				state = StateQuarantined
			}

			if state == StateQuarantined && age >= m.hbTTL+m.hbGrace {
				continue // evict
			}
			kept = append(kept, inst)
		}
		// Zero the dropped tail so evicted instances are not retained.
		for i := len(kept); i < len(b.instances); i++ {
			b.instances[i] = nil
		}
		b.instances = kept
		empty := len(b.instances) == 0
		if !empty {
			reportSize(module, len(b.instances))
		}
		b.mu.Unlock()

		if empty {
			m.dropBucket(module)
		}
	}
}

// nextIndex bumps the round-robin counter for a key, exactly once per pick.
func (m *Manager) nextIndex(key string, n int) int {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	idx := m.counters[key] % n
	m.counters[key] = (m.counters[key] + 1) % n
	return idx
}

// PickInstanceRoundRobin selects an instance of a module, preferring
// selectable (Healthy or Ready) instances. When none are selectable the full
// set is considered.
func (m *Manager) PickInstanceRoundRobin(module string) *Instance {
	all := m.InstancesOf(module)
	if len(all) == 0 {
		return nil
	}

	candidates := make([]*Instance, 0, len(all))
	for _, inst := range all {
		if inst.State().Selectable() {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) == 0 {
		candidates = all
	}

	return candidates[m.nextIndex(module, len(candidates))]
}

// PickServiceRoundRobin selects a selectable instance exposing the named
// service, rotating a per-service counter. It returns the owning module, the
// instance and the service endpoint.
func (m *Manager) PickServiceRoundRobin(serviceName string) (string, *Instance, Endpoint, bool) {
	m.mu.RLock()
	modules := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		modules = append(modules, name)
	}
	m.mu.RUnlock()
	sort.Strings(modules)

	type candidate struct {
		module string
		inst   *Instance
		ep     Endpoint
	}
	var candidates []candidate

	for _, module := range modules {
		for _, inst := range m.InstancesOf(module) {
			ep, ok := inst.Services[serviceName]
			if !ok || !inst.State().Selectable() {
				continue
			}
			candidates = append(candidates, candidate{module: module, inst: inst, ep: ep})
		}
	}

	if len(candidates) == 0 {
		return "", nil, Endpoint{}, false
	}

	c := candidates[m.nextIndex(serviceName, len(candidates))]
	return c.module, c.inst, c.ep, true
}
