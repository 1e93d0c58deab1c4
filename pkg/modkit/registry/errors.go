package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Uniqueness and wiring errors.
var (
	ErrRestRequiresHost = errors.New("REST phase requires an ingress host: modules with capability 'rest' found, but no module with capability 'rest_host'")
	ErrMultipleRestHost = errors.New("multiple 'rest_host' modules detected; exactly one is allowed")
	ErrGrpcRequiresHub  = errors.New("gRPC phase requires a hub: modules with capability 'grpc' found, but no module with capability 'grpc_hub'")
	ErrMultipleGrpcHubs = errors.New("multiple 'grpc_hub' modules detected; exactly one is allowed")
)

// UnknownModuleError reports a capability registered for a name without a core.
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module %q", e.Module)
}

// UnknownDependencyError reports a dependency on a module nobody registered.
type UnknownDependencyError struct {
	Module    string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("module %q depends on unknown %q", e.Module, e.DependsOn)
}

// CycleError reports a dependency cycle. Path lists the cycle nodes in order
// and closes on the starting node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cyclic dependency detected: " + strings.Join(e.Path, " -> ")
}

// InvalidRegistryError aggregates registration-time problems such as
// duplicate modules or conflicting hosts.
type InvalidRegistryError struct {
	Messages []string
}

func (e *InvalidRegistryError) Error() string {
	return "invalid registry configuration:\n  " + strings.Join(e.Messages, "\n  ")
}
