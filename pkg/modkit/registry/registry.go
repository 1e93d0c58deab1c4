// Package registry collects module registrations, validates them and emits a
// topologically sorted, immutable registry for the host runtime.
package registry

import (
	"fmt"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/contracts"
)

// Entry is one validated module with its capability handles. Immutable after
// build.
type Entry struct {
	Name string
	Deps []string
	Core contracts.Module

	Rest        contracts.RestfulModule
	RestHost    contracts.RestHostModule
	DB          contracts.DBModule
	Stateful    contracts.StatefulModule
	GrpcService contracts.GrpcServiceModule

	IsSystem  bool
	IsGrpcHub bool
}

// Registry is the finished, topo-sorted module set.
type Registry struct {
	modules []*Entry

	// GrpcHub is the name of the hub module, when one is declared.
	GrpcHub string
}

// Modules returns the entries in topological order.
func (r *Registry) Modules() []*Entry {
	return r.modules
}

// ModulesBySystemPriority returns entries with system modules first; within
// each group the topological order is preserved.
func (r *Registry) ModulesBySystemPriority() []*Entry {
	out := make([]*Entry, 0, len(r.modules))
	for _, e := range r.modules {
		if e.IsSystem {
			out = append(out, e)
		}
	}
	for _, e := range r.modules {
		if !e.IsSystem {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry for a module name.
func (r *Registry) Get(name string) (*Entry, bool) {
	for _, e := range r.modules {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// HasRest reports whether any module declares the rest capability.
func (r *Registry) HasRest() bool {
	for _, e := range r.modules {
		if e.Rest != nil {
			return true
		}
	}
	return false
}

// RestHost returns the single rest host entry, when declared.
func (r *Registry) RestHost() (*Entry, bool) {
	for _, e := range r.modules {
		if e.RestHost != nil {
			return e, true
		}
	}
	return nil, false
}

// GrpcServices returns the entries declaring the grpc capability, in
// topological order.
func (r *Registry) GrpcServices() []*Entry {
	var out []*Entry
	for _, e := range r.modules {
		if e.GrpcService != nil {
			out = append(out, e)
		}
	}
	return out
}

// Registrar pushes one module's registration into a builder. The runner
// discovers modules through an explicit registrar list.
type Registrar func(*Builder)

// Registration is the declarative form a registrar submits.
type Registration struct {
	Name string
	Deps []string
	Core contracts.Module

	Rest        contracts.RestfulModule
	RestHost    contracts.RestHostModule
	DB          contracts.DBModule
	Stateful    contracts.StatefulModule
	GrpcService contracts.GrpcServiceModule

	System  bool
	GrpcHub bool
}

// Builder accumulates registrations. Keys are module names; uniqueness is
// enforced at registration time and reported at build.
type Builder struct {
	order []string
	regs  map[string]*Registration

	restHostName string
	grpcHubName  string

	errors []string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{regs: make(map[string]*Registration)}
}

// Register submits one module. Capability handles default to the core value
// when the concrete type implements the corresponding interface.
func (b *Builder) Register(reg Registration) {
	if reg.Name == "" {
		b.errors = append(b.errors, "module with empty name rejected")
		return
	}
	if _, exists := b.regs[reg.Name]; exists {
		b.errors = append(b.errors, fmt.Sprintf("module %q is already registered", reg.Name))
		return
	}

	r := reg
	fillFromCore(&r)

	if r.RestHost != nil {
		if b.restHostName != "" {
			b.errors = append(b.errors, fmt.Sprintf(
				"multiple REST host modules detected: %q and %q; only one REST host is allowed",
				b.restHostName, r.Name))
			return
		}
		b.restHostName = r.Name
	}

	if r.GrpcHub {
		if b.grpcHubName != "" {
			b.errors = append(b.errors, fmt.Sprintf(
				"multiple gRPC hub modules detected: %q and %q; only one gRPC hub is allowed",
				b.grpcHubName, r.Name))
			return
		}
		b.grpcHubName = r.Name
	}

	b.order = append(b.order, r.Name)
	b.regs[r.Name] = &r
}

// fillFromCore wires capability handles from the core object when the
// registration leaves them nil and the concrete type implements them.
func fillFromCore(r *Registration) {
	if r.Core == nil {
		return
	}
	if r.Rest == nil {
		if m, ok := r.Core.(contracts.RestfulModule); ok {
			r.Rest = m
		}
	}
	if r.RestHost == nil {
		if m, ok := r.Core.(contracts.RestHostModule); ok {
			r.RestHost = m
		}
	}
	if r.DB == nil {
		if m, ok := r.Core.(contracts.DBModule); ok {
			r.DB = m
		}
	}
	if r.Stateful == nil {
		if m, ok := r.Core.(contracts.StatefulModule); ok {
			r.Stateful = m
		}
	}
	if r.GrpcService == nil {
		if m, ok := r.Core.(contracts.GrpcServiceModule); ok {
			r.GrpcService = m
		}
	}
}

// Build validates the accumulated registrations and produces the topo-sorted
// registry.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errors) > 0 {
		return nil, &InvalidRegistryError{Messages: b.errors}
	}

	for _, name := range b.order {
		if b.regs[name].Core == nil {
			return nil, &UnknownModuleError{Module: name}
		}
	}

	// Adjacency: edge dep -> module, so dependencies sort first.
	index := make(map[string]int, len(b.order))
	for i, name := range b.order {
		index[name] = i
	}

	adj := make([][]int, len(b.order))
	indeg := make([]int, len(b.order))

	for i, name := range b.order {
		for _, dep := range b.regs[name].Deps {
			j, ok := index[dep]
			if !ok {
				return nil, &UnknownDependencyError{Module: name, DependsOn: dep}
			}
			adj[j] = append(adj[j], i)
			indeg[i]++
		}
	}

	if cycle := detectCycle(b.order, adj); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	// Capability/host pairing is validated at build time so that no phase
	// runs against an unservable registry.
	var hasRest, hasGrpc bool
	for _, name := range b.order {
		if b.regs[name].Rest != nil {
			hasRest = true
		}
		if b.regs[name].GrpcService != nil {
			hasGrpc = true
		}
	}
	if hasRest && b.restHostName == "" {
		return nil, ErrRestRequiresHost
	}
	if hasGrpc && b.grpcHubName == "" {
		return nil, ErrGrpcRequiresHub
	}

	// Kahn's algorithm; the ready list is kept in insertion order so ties
	// break stably.
	var queue []int
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	var sorted []int
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		sorted = append(sorted, u)
		for _, w := range adj[u] {
			indeg[w]--
			if indeg[w] == 0 {
				queue = insertOrdered(queue, w)
			}
		}
	}

	entries := make([]*Entry, 0, len(sorted))
	for _, i := range sorted {
		reg := b.regs[b.order[i]]
		entries = append(entries, &Entry{
			Name:        reg.Name,
			Deps:        reg.Deps,
			Core:        reg.Core,
			Rest:        reg.Rest,
			RestHost:    reg.RestHost,
			DB:          reg.DB,
			Stateful:    reg.Stateful,
			GrpcService: reg.GrpcService,
			IsSystem:    reg.System,
			IsGrpcHub:   reg.GrpcHub,
		})
	}

	reg := &Registry{
		modules: entries,
		GrpcHub: b.grpcHubName,
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	logger.Log.Info("Module dependency order resolved", "modules", names)

	return reg, nil
}

// insertOrdered keeps the ready queue sorted by insertion index.
func insertOrdered(queue []int, v int) []int {
	for i, q := range queue {
		if v < q {
			queue = append(queue[:i], append([]int{v}, queue[i:]...)...)
			return queue
		}
	}
	return append(queue, v)
}

// detectCycle runs a three-color DFS over the adjacency and returns the cycle
// path (closed on its starting node) when a back edge is found.
func detectCycle(names []string, adj [][]int) []string {
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // finished
	)

	colors := make([]int, len(names))
	var path []int

	var dfs func(node int) []string
	dfs = func(node int) []string {
		colors[node] = gray
		path = append(path, node)

		for _, next := range adj[node] {
			switch colors[next] {
			case gray:
				// Back edge: slice the cycle out of the current path.
				for start, n := range path {
					if n == next {
						cycle := make([]string, 0, len(path)-start+1)
						for _, idx := range path[start:] {
							cycle = append(cycle, names[idx])
						}
						cycle = append(cycle, names[next])
						return cycle
					}
				}
			case white:
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		colors[node] = black
		return nil
	}

	for i := range names {
		if colors[i] == white {
			if cycle := dfs(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
